package absint

import (
	"github.com/cs-au-dk/jstar/analysis/cfg"

	log "github.com/sirupsen/logrus"
)

// An EvalCache memoizes the lowering of dynamically constructed code.
// Generated programs tend to evaluate the same source strings over and
// over; each distinct string is parsed and lowered exactly once, and
// parse failures are cached the same way so a bad string is not
// re-parsed on every fixpoint iteration.
type EvalCache struct {
	fg        *cfg.FlowGraph
	fragments map[string]*cfg.Function
	failures  map[string]error

	hits, misses int
}

func NewEvalCache(fg *cfg.FlowGraph) *EvalCache {
	return &EvalCache{
		fg:        fg,
		fragments: map[string]*cfg.Function{},
		failures:  map[string]error{},
	}
}

// Fragment returns the lowered function for the source string.
func (c *EvalCache) Fragment(src string) (*cfg.Function, error) {
	if fn, ok := c.fragments[src]; ok {
		c.hits++
		return fn, nil
	}
	if err, ok := c.failures[src]; ok {
		c.hits++
		return nil, err
	}
	c.misses++
	fn, err := c.fg.BuildFragment("<eval>", src)
	if err != nil {
		c.failures[src] = err
		return nil, err
	}
	c.fragments[src] = fn
	log.WithField("blocks", len(fn.Blocks())).Debug("lowered eval fragment")
	return fn, nil
}

// Stats returns cache hit and miss counts.
func (c *EvalCache) Stats() (hits, misses int) {
	return c.hits, c.misses
}

// Reset drops every memoized fragment, cached failure, and counter.
// A cache reused across analyses of different flow graphs must be
// reset in between; fragments are lowered into one graph.
func (c *EvalCache) Reset() {
	c.fragments = map[string]*cfg.Function{}
	c.failures = map[string]error{}
	c.hits, c.misses = 0, 0
}
