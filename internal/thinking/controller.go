package thinking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/budgetforce/internal/engine"
	"github.com/flemzord/budgetforce/internal/tokens"
)

// nopHandler is a slog.Handler that discards all records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithObserver adds a controller-wide trace observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithTracer sets the OpenTelemetry tracer for session spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// WithInjector overrides the nudge policy selected by Config.
func WithInjector(inj Injector) Option {
	return func(c *Controller) { c.injector = inj }
}

// Controller drives budget-forced sessions against one engine. It holds no
// per-session state and is safe for concurrent use; each Run owns its
// Session exclusively.
type Controller struct {
	engine    engine.Engine
	counter   tokens.Counter
	renderer  Renderer
	cfg       Config
	policy    SamplingPolicy
	injector  Injector
	synth     *Synthesizer
	observers multiObserver
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// New creates a Controller. cfg is validated after defaults are applied.
func New(eng engine.Engine, counter tokens.Counter, renderer Renderer, cfg Config, opts ...Option) (*Controller, error) {
	if eng == nil {
		return nil, errors.New("thinking: engine is required")
	}
	if counter == nil {
		return nil, errors.New("thinking: token counter is required")
	}
	if renderer == nil {
		return nil, errors.New("thinking: renderer is required")
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		engine:   eng,
		counter:  counter,
		renderer: renderer,
		cfg:      cfg,
		policy:   cfg.SamplingPolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(nopHandler{})
	}
	if c.tracer == nil {
		c.tracer = noop.NewTracerProvider().Tracer("")
	}
	if c.injector == nil {
		inj, err := NewInjector(cfg.Nudge, cfg.NudgeText, cfg.Nudges)
		if err != nil {
			return nil, err
		}
		c.injector = inj
	}
	c.synth = NewSynthesizer(eng, counter, cfg.Markers, c.policy, c.logger)
	return c, nil
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// run carries the per-session bookkeeping shared by Run and Baseline.
type run struct {
	c        *Controller
	s        *Session
	observer Observer
	seq      int
	started  time.Time
}

func (r *run) emit(e Event) {
	r.seq++
	e.SessionID = r.s.ID
	e.Seq = r.seq
	e.State = r.s.State
	e.Iteration = r.s.IterationCount
	e.Budget = r.s.Budget
	e.CumulativeTokens = r.s.CumulativeThinkingTokens
	e.Time = r.c.now()
	if e.Kind == EventDone || e.Kind == EventFailed {
		e.Elapsed = e.Time.Sub(r.started)
	}
	r.observer.Observe(e)
}

// forceClose ends the thinking phase because the budget is spent.
func (r *run) forceClose() {
	r.s.State = StateBudgetExceeded
	r.s.ThinkingStop = StopBudgetExceeded
	r.emit(Event{Kind: EventBudgetExceeded})
	r.s.Transcript = r.c.cfg.Markers.CloseBlock(r.s.Transcript)
}

func (r *run) fail(span trace.Span, err error) error {
	state := r.s.State
	r.s.State = StateFailed
	r.emit(Event{Kind: EventFailed, Err: err.Error()})
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &SessionError{
		SessionID:  r.s.ID,
		State:      state,
		Iteration:  r.s.IterationCount,
		Cumulative: r.s.CumulativeThinkingTokens,
		Err:        err,
	}
}

func (c *Controller) start(ctx context.Context, req Request, spanName string) (context.Context, trace.Span, *run, error) {
	if req.Budget < 0 {
		return ctx, nil, nil, fmt.Errorf("%w: %d", ErrInvalidBudget, req.Budget)
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	observers := c.observers
	if req.Observer != nil {
		observers = append(append(multiObserver{}, c.observers...), req.Observer)
	}

	ctx, span := c.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.Int("session.budget", req.Budget),
		attribute.String("engine.model", c.engine.ModelName()),
	))

	r := &run{
		c:        c,
		s:        &Session{ID: id, Input: req.Input, Budget: req.Budget, State: StateInit},
		observer: observers,
		started:  c.now(),
	}

	prompt, err := c.renderer.Render(req.Input)
	if err != nil {
		return ctx, span, r, r.fail(span, fmt.Errorf("%w: %w", ErrRender, err))
	}
	r.s.Prompt = prompt
	r.s.Transcript = prompt
	r.s.PromptTokenCount = c.counter.Count(prompt)
	r.emit(Event{Kind: EventSessionStart})
	return ctx, span, r, nil
}

// Run executes one budget-forced session. On success the returned answer
// is complete; on failure the error is a *SessionError wrapping one of the
// engine or thinking sentinels and no answer is returned.
func (c *Controller) Run(ctx context.Context, req Request) (*FinalAnswer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ctx, span, r, err := c.start(ctx, req, "thinking.session")
	if span != nil {
		defer span.End()
	}
	if err != nil {
		return nil, err
	}
	s := r.s
	if c.cfg.Markers.IsClosed(s.Prompt) {
		return nil, r.fail(span, ErrThinkingDisabled)
	}
	s.State = StateThinking
	if s.Budget == 0 {
		r.forceClose()
	}

	for s.State == StateThinking {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(span, err)
		}

		sampling := c.policy.Thinking(s.Budget - s.CumulativeThinkingTokens)
		callStart := c.now()
		res, err := c.engine.Generate(ctx, s.Transcript, sampling)
		if err != nil {
			return nil, r.fail(span, err)
		}
		if !res.StopReason.Valid() {
			return nil, r.fail(span, fmt.Errorf("%w: stop reason %q", engine.ErrMalformedResponse, res.StopReason))
		}

		s.Transcript += res.Text
		prev := s.CumulativeThinkingTokens
		count := c.counter.Count(c.cfg.Markers.Reasoning(s.Transcript, len(s.Prompt)))
		if count < prev {
			return nil, r.fail(span, fmt.Errorf("%w: %d after %d", ErrTokenCountRegression, count, prev))
		}
		s.CumulativeThinkingTokens = count

		r.emit(Event{
			Kind:         EventGenerate,
			MaxTokens:    sampling.MaxTokens,
			StopReason:   res.StopReason,
			Output:       res.Text,
			EngineTokens: res.Usage.CompletionTokens,
			DeltaTokens:  count - prev,
			Elapsed:      c.now().Sub(callStart),
		})

		if s.CumulativeThinkingTokens > s.Budget {
			r.forceClose()
			break
		}
		if res.StopReason == engine.StopReasonMarker && s.CumulativeThinkingTokens >= c.cfg.MinThinkingTokens {
			s.ThinkingStop = StopModelClosed
			break
		}
		// A spent budget closes the block; a nudge is never the last
		// thing before the close marker.
		if s.CumulativeThinkingTokens >= s.Budget {
			r.forceClose()
			break
		}
		if s.IterationCount >= c.cfg.MaxIterations {
			return nil, r.fail(span, fmt.Errorf("%w: %d iterations", ErrBudgetNeverSatisfied, s.IterationCount))
		}

		nudged := c.injector.Inject(s.Transcript, s.IterationCount)
		if c.counter.Count(c.cfg.Markers.Reasoning(nudged, len(s.Prompt))) >= s.Budget {
			r.forceClose()
			break
		}
		s.Transcript = nudged
		s.IterationCount++
		r.emit(Event{Kind: EventNudge})
	}

	s.State = StateForcedClose
	r.emit(Event{Kind: EventForcedClose})

	r.emit(Event{Kind: EventFinalGeneration, MaxTokens: c.policy.AnswerMaxTokens})
	fa, res, err := c.synth.Synthesize(ctx, s)
	if err != nil {
		return nil, r.fail(span, err)
	}

	s.State = StateDone
	r.emit(Event{
		Kind:         EventDone,
		StopReason:   res.StopReason,
		EngineTokens: res.Usage.CompletionTokens,
	})
	span.SetAttributes(
		attribute.Int("session.iterations", fa.IterationCount),
		attribute.Int("session.thinking_tokens", fa.ThinkingTokenCount),
		attribute.String("session.thinking_stop", string(fa.ThinkingStop)),
		attribute.Bool("session.degraded", fa.DegradedExtraction),
	)
	return fa, nil
}

// Baseline runs the prompt once with no thinking budget and no stop
// string, for comparison with budget-forced runs. Budget is ignored.
func (c *Controller) Baseline(ctx context.Context, req Request) (*FinalAnswer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req.Budget = 0
	ctx, span, r, err := c.start(ctx, req, "thinking.baseline")
	if span != nil {
		defer span.End()
	}
	if err != nil {
		return nil, err
	}
	s := r.s
	s.State = StateFinalGeneration
	s.ThinkingStop = StopUnbounded

	sampling := c.policy.Baseline()
	r.emit(Event{Kind: EventFinalGeneration, MaxTokens: sampling.MaxTokens})
	res, err := c.engine.Generate(ctx, s.Prompt, sampling)
	if err != nil {
		return nil, r.fail(span, err)
	}

	fa := c.synth.Baseline(s, res.Text)
	s.Transcript = fa.FullTranscript
	s.CumulativeThinkingTokens = fa.ThinkingTokenCount
	s.State = StateDone
	r.emit(Event{
		Kind:         EventDone,
		StopReason:   res.StopReason,
		Output:       res.Text,
		EngineTokens: res.Usage.CompletionTokens,
	})
	return fa, nil
}
