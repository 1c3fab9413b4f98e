package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"":      zapcore.InfoLevel,
		"bogus": zapcore.InfoLevel,
	}
	for in, want := range cases {
		l, err := New(in, "json")
		if err != nil {
			t.Fatalf("New(%q): %v", in, err)
		}
		if !l.Core().Enabled(want) || (want > zapcore.DebugLevel && l.Core().Enabled(want-1)) {
			t.Fatalf("New(%q): expected level %s", in, want)
		}
	}
	if _, err := New("info", "console"); err != nil {
		t.Fatalf("console logger: %v", err)
	}
}

func TestFromContext(t *testing.T) {
	base := zap.NewNop()
	if FromContext(context.Background(), base) != base {
		t.Fatalf("expected fallback")
	}
	scoped := zap.NewExample()
	ctx := WithContext(context.Background(), scoped)
	if FromContext(ctx, base) != scoped {
		t.Fatalf("expected scoped logger")
	}
	if FromContext(context.Background(), nil) == nil {
		t.Fatalf("nil fallback must yield a usable logger")
	}
}
