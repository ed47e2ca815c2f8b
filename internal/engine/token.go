package engine

import (
	"sync"

	"github.com/google/uuid"
)

// RunTokenGenerator produces correlation tokens for reconciliation passes.
// Every pass gets one token, stamped into logs and the apply report so a
// run's mutations can be traced across components.
type RunTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run tokens. Production
// default: tokens sort by start time, which keeps scheduled runs easy to
// line up in logs.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens in order. Test use only -
// deterministic tokens keep golden output stable.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that yields tokens in order and
// panics when exhausted (a test consuming more runs than it declared is a
// test bug).
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
