// Package balance implements the weighted upstream picker consumed by the
// proxy core. The pick itself is a pure function of the candidate weights
// plus the chosen strategy; callers re-identify the winning candidate by
// its coordinates.
package balance

import (
	"errors"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/quivery/rpcgate"
)

// Supported balancing strategies. Unknown strategy names degrade to Random.
const (
	Random     = "random"
	RoundRobin = "roundRobin"
	Hash       = "hash"
)

var ErrNoCandidates = errors.New("balance: no candidate to pick from")

// Picker selects one upstream among weighted candidates.
type Picker struct {
	lk  sync.Mutex
	rng *rand.Rand
	rr  uint64
}

var _ rpcgate.Picker = (*Picker)(nil)

func NewPicker() *Picker {
	return &Picker{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pick returns the coordinates of one candidate. key partitions traffic for
// the Hash strategy and is ignored otherwise.
func (p *Picker) Pick(candidates []rpcgate.Upstream, strategy string, key string) (rpcgate.Upstream, error) {
	if len(candidates) == 0 {
		return rpcgate.Upstream{}, ErrNoCandidates
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	switch strategy {
	case RoundRobin:
		return candidates[p.next()%uint64(len(candidates))], nil
	case Hash:
		return candidates[hashOf(key)%uint64(len(candidates))], nil
	default:
		return p.pickWeighted(candidates), nil
	}
}

// pickWeighted draws proportionally to the candidate weights; a candidate
// with weight zero is never drawn while any positive weight exists. When
// the total weight is zero the draw is uniform.
func (p *Picker) pickWeighted(candidates []rpcgate.Upstream) rpcgate.Upstream {
	total := 0
	for _, c := range candidates {
		if c.Weight > 0 {
			total += c.Weight
		}
	}

	p.lk.Lock()
	defer p.lk.Unlock()

	if total <= 0 {
		return candidates[p.rng.Intn(len(candidates))]
	}

	r := p.rng.Intn(total)
	for _, c := range candidates {
		if c.Weight <= 0 {
			continue
		}
		r -= c.Weight
		if r < 0 {
			return c
		}
	}

	// Unreachable with a positive total, kept as a hard floor.
	return candidates[len(candidates)-1]
}

func (p *Picker) next() uint64 {
	p.lk.Lock()
	defer p.lk.Unlock()
	p.rr++
	return p.rr
}

func hashOf(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return h.Sum64()
}
