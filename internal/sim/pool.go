package sim

import (
	"sync"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

// IDPool recycles id buffers by length. Partitions keep their size for the
// whole run, so each length settles on its own pool.
type IDPool struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool
}

func NewIDPool() *IDPool {
	return &IDPool{pools: make(map[int]*sync.Pool)}
}

func (p *IDPool) pool(n int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.pools[n]
	if !ok {
		sp = &sync.Pool{
			New: func() any {
				ids := make([]dynamo.ID, n)
				return &ids
			},
		}
		p.pools[n] = sp
	}
	return sp
}

func (p *IDPool) Get(n int) []dynamo.ID {
	return *p.pool(n).Get().(*[]dynamo.ID)
}

func (p *IDPool) Put(ids []dynamo.ID) {
	if len(ids) == 0 {
		return
	}
	p.pool(len(ids)).Put(&ids)
}
