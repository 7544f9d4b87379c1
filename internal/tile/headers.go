package tile

import (
	"math/rand/v2"
	"net/http"
)

// HeaderPool rotates request headers between attempts so consecutive
// requests do not present an identical browser fingerprint.
type HeaderPool struct {
	sets []map[string]string
}

// NewHeaderPool returns a pool over the given header sets. An empty pool
// leaves requests untouched.
func NewHeaderPool(sets []map[string]string) *HeaderPool {
	return &HeaderPool{sets: sets}
}

// Len returns the number of header sets in the pool.
func (p *HeaderPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.sets)
}

// Apply copies one randomly chosen header set onto req.
func (p *HeaderPool) Apply(req *http.Request) {
	if p.Len() == 0 {
		return
	}
	for k, v := range p.sets[rand.IntN(len(p.sets))] {
		// Host is derived from the request URL; overriding it would
		// redirect the request when a proxy or test server is in use.
		if http.CanonicalHeaderKey(k) == "Host" {
			continue
		}
		req.Header.Set(k, v)
	}
}
