// Package usage tracks token consumption: a per-run accumulator for one
// pipeline pass and a persistent tracker aggregating across runs.
package usage

import "cottbot/internal/types"

// Accumulator sums token counts and cost across the completion calls of a
// single run. Not safe for concurrent use; each run owns its own.
type Accumulator struct {
	promptTokens     int
	completionTokens int
	cost             float64
}

// Add folds one completion call's usage and incremental cost into the run.
func (a *Accumulator) Add(u types.UsageMetadata, cost float64) {
	a.promptTokens += u.PromptTokens
	a.completionTokens += u.CompletionTokens
	a.cost += cost
}

// Snapshot is the accumulator's read-only view.
type Snapshot struct {
	PromptTokens     int
	CompletionTokens int
	Cost             float64
}

// TotalTokens returns the combined token count.
func (s Snapshot) TotalTokens() int {
	return s.PromptTokens + s.CompletionTokens
}

// Snapshot returns the current sums.
func (a *Accumulator) Snapshot() Snapshot {
	return Snapshot{
		PromptTokens:     a.promptTokens,
		CompletionTokens: a.completionTokens,
		Cost:             a.cost,
	}
}
