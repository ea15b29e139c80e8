package ingest

import (
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/citizen-docs/constants"
)

// Pair is one document's images as they arrive in the inbox.
type Pair struct {
	Key       string
	DocType   constants.DocType
	FrontPath string
	BackPath  string
	FirstSeen time.Time
}

// Complete reports whether every side the type needs has arrived.
func (p Pair) Complete() bool {
	if p.FrontPath == "" {
		return false
	}
	return !p.DocType.DualSided() || p.BackPath != ""
}

// Pairer matches fronts with backs. Safe for concurrent use.
type Pairer struct {
	mu      sync.Mutex
	pending map[string]*Pair
	now     func() time.Time
}

func NewPairer() *Pairer {
	return &Pairer{pending: map[string]*Pair{}, now: time.Now}
}

// Add records n and returns the pair once it is complete, removing it from
// the pending set. A later image for the same side replaces the earlier one.
func (p *Pairer) Add(n Name) (Pair, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pair, ok := p.pending[n.Key]
	if !ok {
		pair = &Pair{Key: n.Key, DocType: n.DocType, FirstSeen: p.now()}
		p.pending[n.Key] = pair
	}
	if n.Side == constants.SideBack {
		pair.BackPath = n.Path
	} else {
		pair.FrontPath = n.Path
	}
	if !pair.Complete() {
		return Pair{}, false
	}
	delete(p.pending, n.Key)
	return *pair, true
}

// Expire removes and returns pairs that have waited longer than maxAge for
// their other side, oldest first.
func (p *Pairer) Expire(maxAge time.Duration) []Pair {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-maxAge)
	var out []Pair
	for k, pair := range p.pending {
		if pair.FirstSeen.Before(cutoff) {
			out = append(out, *pair)
			delete(p.pending, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeen.Before(out[j].FirstSeen) })
	return out
}

// Pending counts documents still waiting for a side.
func (p *Pairer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
