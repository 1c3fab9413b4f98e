package catalog

import (
	"context"
	"testing"
)

func TestStatic_Lookup(t *testing.T) {
	c := Static{
		"p1": {ID: "p1", Name: "Mug", Price: 250, Stock: 3, Active: true},
		"p2": {ID: "p2", Name: "Cap", Price: 100, Stock: 0, Active: true},
		"p3": {ID: "p3", Name: "Old", Price: 10, Stock: 9, Active: false},
	}
	got, err := c.Lookup(context.Background(), []string{"p1", "p2", "p3", "nope"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 products, got %d", len(got))
	}
	if !got["p1"].InStock() || got["p2"].InStock() || got["p3"].InStock() {
		t.Fatalf("stock classification wrong")
	}
	if _, ok := got["nope"]; ok {
		t.Fatalf("unknown id must be absent")
	}
}
