package harness

import "github.com/roach88/tagstate/internal/protocol"

// BlockEvent records what happened to one block step.
type BlockEvent struct {
	Number     uint32                `json:"number"`
	Time       protocol.TimePointSec `json:"time"`
	Operations int                   `json:"operations"`
	// Outcome is OutcomeApplied, OutcomePopped or the error code the block
	// was rejected with.
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// QueryOutput is the result of one named query. Value holds the query
// package's result type.
type QueryOutput struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every block matched its expectation, every
	// assertion held and the aggregates verified.
	Pass bool `json:"pass"`

	Blocks  []BlockEvent  `json:"blocks"`
	Queries []QueryOutput `json:"queries"`
	Errors  []string      `json:"errors,omitempty"`

	Head   uint32 `json:"head"`
	Digest string `json:"digest"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Blocks:  []BlockEvent{},
		Queries: []QueryOutput{},
		Errors:  []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Query returns the output of the named query.
func (r *Result) Query(name string) (QueryOutput, bool) {
	for _, q := range r.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return QueryOutput{}, false
}
