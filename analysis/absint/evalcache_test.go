package absint

import (
	"testing"

	"github.com/cs-au-dk/jstar/analysis/cfg"
)

func TestEvalCacheReset(t *testing.T) {
	fg, err := cfg.BuildSource("test.js", "var x = 1;")
	if err != nil {
		t.Fatal(err)
	}
	c := NewEvalCache(fg)

	if _, err := c.Fragment("var a = 1;"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fragment("var a = 1;"); err != nil {
		t.Fatal(err)
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses, want 1/1", hits, misses)
	}
	if _, err := c.Fragment("var ="); err == nil {
		t.Fatal("bad fragment lowered without error")
	}

	c.Reset()
	if hits, misses := c.Stats(); hits != 0 || misses != 0 {
		t.Errorf("stats after reset = %d hits, %d misses", hits, misses)
	}
	// Both the fragment and the cached failure are gone.
	if _, err := c.Fragment("var a = 1;"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fragment("var ="); err == nil {
		t.Fatal("bad fragment lowered without error after reset")
	}
	if hits, misses := c.Stats(); hits != 0 || misses != 2 {
		t.Errorf("stats after re-lowering = %d hits, %d misses, want 0/2", hits, misses)
	}
}
