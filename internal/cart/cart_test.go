package cart

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKey(t *testing.T) {
	if Key("u1") != "cart:u1" {
		t.Fatalf("unexpected key %s", Key("u1"))
	}
}

func TestClear_SurfacesConnectionErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	if err := NewRedis(rdb).Clear(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error from unreachable redis")
	}
}
