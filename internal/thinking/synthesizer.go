package thinking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/budgetforce/internal/engine"
	"github.com/flemzord/budgetforce/internal/tokens"
)

// Synthesizer runs the FORCED_CLOSE → FINAL_GENERATION → DONE path: it
// closes the reasoning block, requests the answer and extracts segments.
// Extraction never fails; missing markers yield a degraded answer.
type Synthesizer struct {
	engine  engine.Engine
	counter tokens.Counter
	markers Markers
	policy  SamplingPolicy
	logger  *slog.Logger
}

// NewSynthesizer creates a Synthesizer. A nil logger discards output.
func NewSynthesizer(eng engine.Engine, counter tokens.Counter, markers Markers, policy SamplingPolicy, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.New(nopHandler{})
	}
	return &Synthesizer{
		engine:  eng,
		counter: counter,
		markers: markers,
		policy:  policy,
		logger:  logger,
	}
}

// Synthesize issues the single answer-phase call for s and assembles the
// FinalAnswer. s.Transcript must already hold the prompt and reasoning.
func (y *Synthesizer) Synthesize(ctx context.Context, s *Session) (*FinalAnswer, engine.Result, error) {
	// Stop strings are stripped by most servers, so the block may still be
	// open even when the model closed it.
	s.Transcript = y.markers.CloseBlock(s.Transcript)
	s.State = StateFinalGeneration

	res, err := y.engine.Generate(ctx, s.Transcript, y.policy.Answer())
	if err != nil {
		return nil, res, fmt.Errorf("final generation: %w", err)
	}

	fa := y.assemble(s, s.Transcript+res.Text)
	fa.ThinkingTokenCount = s.CumulativeThinkingTokens
	return fa, res, nil
}

// Baseline assembles a FinalAnswer from an unbudgeted completion of s.Prompt.
// The thinking count is taken from the extracted segment.
func (y *Synthesizer) Baseline(s *Session, completion string) *FinalAnswer {
	fa := y.assemble(s, s.Prompt+completion)
	if !fa.DegradedExtraction {
		fa.ThinkingTokenCount = y.counter.Count(fa.ThinkingSegment)
	}
	return fa
}

func (y *Synthesizer) assemble(s *Session, full string) *FinalAnswer {
	fa := &FinalAnswer{
		SessionID:        s.ID,
		FullTranscript:   full,
		IterationCount:   s.IterationCount,
		PromptTokenCount: s.PromptTokenCount,
		TotalTokenCount:  y.counter.Count(full),
		ThinkingStop:     s.ThinkingStop,
	}

	reasoning, answer, ok := y.markers.Split(full)
	if !ok {
		y.logger.Warn("degraded extraction",
			"session", s.ID,
			"error", ErrMarkerExtraction,
		)
		fa.AnswerSegment = full
		fa.DegradedExtraction = true
	} else {
		fa.ThinkingSegment = reasoning
		fa.AnswerSegment = answer
	}
	fa.BoxedAnswer = ExtractBoxed(fa.AnswerSegment)
	return fa
}
