package demotransport

import (
	"sync"

	"github.com/meshdisco/discoveryd/internal/ddb"
)

// Pool is the minimal in-memory stand-in for a transport's CacheChange
// pool: changes returned via Release are just dropped, since the demo
// transport has no fixed-size backing buffer to recycle into. Satisfies
// both routine.Pool and listener.Pool.
type Pool struct {
	mu       sync.Mutex
	released int
}

// NewPool constructs an empty Pool.
func NewPool() *Pool {
	return &Pool{}
}

// Release returns c to the pool.
func (p *Pool) Release(c *ddb.CacheChange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
}

// Released reports how many changes have been released so far, mostly
// useful from tests checking that a rejected change was actually returned.
func (p *Pool) Released() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}
