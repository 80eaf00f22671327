package meeting

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// ErrEmptyCatalog is returned when no usable meeting name remains after
// trimming. It is a startup fault, never a per-request error.
var ErrEmptyCatalog = errors.New("meeting catalog is empty")

// Rand is the index source used by Pick. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// globalRand is the process-wide math/rand/v2 generator, safe for concurrent use.
type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

type Catalog struct {
	names []string
	index map[string]struct{}
	meta  Meta
	rnd   Rand
	// mu serialises an injected Rand, which usually is not goroutine safe
	mu *sync.Mutex
}

type Option func(*Catalog)

// WithRand replaces the process-wide generator, typically with a seeded
// rand.New(rand.NewPCG(a, b)) in tests.
func WithRand(r Rand) Option {
	return func(c *Catalog) {
		if r != nil {
			c.rnd = r
			c.mu = &sync.Mutex{}
		}
	}
}

// WithMeta records where the names came from.
func WithMeta(m Meta) Option {
	return func(c *Catalog) { c.meta = m }
}

// New builds a catalog from names. Entries are trimmed and blanks dropped;
// ErrEmptyCatalog is returned when nothing is left. The input slice is copied.
func New(names []string, opts ...Option) (*Catalog, error) {
	kept := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			kept = append(kept, n)
		}
	}
	if len(kept) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		names: kept,
		index: make(map[string]struct{}, len(kept)),
		rnd:   globalRand{},
	}
	for _, n := range kept {
		c.index[n] = struct{}{}
	}
	for _, o := range opts {
		o(c)
	}
	if c.meta.Source == "" {
		c.meta.Source = OriginBuiltin
	}
	if c.meta.LoadedAt.IsZero() {
		c.meta.LoadedAt = time.Now().UTC()
	}
	return c, nil
}

// Pick returns a uniformly chosen name. It is safe for concurrent use.
func (c *Catalog) Pick() string {
	if c.mu == nil {
		return c.names[c.rnd.IntN(len(c.names))]
	}
	c.mu.Lock()
	i := c.rnd.IntN(len(c.names))
	c.mu.Unlock()
	return c.names[i]
}

// Names returns a copy of the catalog in load order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *Catalog) Len() int { return len(c.names) }

func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

func (c *Catalog) Meta() Meta { return c.meta }

// CatalogVersion and CatalogHash satisfy httpmw.CatalogInfo.
func (c *Catalog) CatalogVersion() string { return c.meta.Version }

func (c *Catalog) CatalogHash() string { return c.meta.SHA256 }
