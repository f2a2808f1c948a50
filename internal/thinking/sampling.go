package thinking

import "github.com/flemzord/budgetforce/internal/engine"

// SamplingPolicy builds the sampling parameters for each phase. It holds no
// session state, so the state machine can be tested against any policy.
type SamplingPolicy struct {
	Temperature       float64
	TopP              float64
	CloseMarker       string
	AnswerMaxTokens   int
	BaselineMaxTokens int
}

// Thinking returns the parameters for a reasoning-phase call with the given
// remaining budget. Negative remainders are clamped to zero.
func (p SamplingPolicy) Thinking(remaining int) engine.Sampling {
	return engine.Sampling{
		Temperature:              p.Temperature,
		TopP:                     p.TopP,
		MaxTokens:                max(remaining, 0),
		Stop:                     p.CloseMarker,
		PreserveStructuralTokens: true,
	}
}

// Answer returns the parameters for the single answer-phase call.
func (p SamplingPolicy) Answer() engine.Sampling {
	return engine.Sampling{
		Temperature:              p.Temperature,
		TopP:                     p.TopP,
		MaxTokens:                p.AnswerMaxTokens,
		PreserveStructuralTokens: true,
	}
}

// Baseline returns the parameters for an unbudgeted run.
func (p SamplingPolicy) Baseline() engine.Sampling {
	return engine.Sampling{
		Temperature:              p.Temperature,
		TopP:                     p.TopP,
		MaxTokens:                p.BaselineMaxTokens,
		PreserveStructuralTokens: true,
	}
}
