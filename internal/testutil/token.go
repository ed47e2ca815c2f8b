package testutil

// FixedRunGenerator returns the same run token every time.
//
// Unlike engine.FixedGenerator, which hands out a finite sequence and
// panics when exhausted, this generator never runs dry. Use it when a test
// applies an unknown number of plans and only needs the token to be
// stable, e.g. for golden output.
//
// Thread-safety: stateless, safe for concurrent use.
type FixedRunGenerator struct {
	token string
}

// NewFixedRunGenerator creates a generator for the given token. An empty
// token defaults to "test-run-default".
func NewFixedRunGenerator(token string) *FixedRunGenerator {
	if token == "" {
		token = "test-run-default"
	}
	return &FixedRunGenerator{token: token}
}

// Generate implements engine.RunTokenGenerator.
func (g *FixedRunGenerator) Generate() string {
	return g.token
}
