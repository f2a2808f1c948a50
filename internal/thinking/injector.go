package thinking

import "fmt"

// Built-in nudges.
const (
	NudgeWait     = "\nWait!\n"
	NudgeCritique = "\nWait a moment. Was there any loophole in my thought just now?!\n"
)

// Injector names accepted by NewInjector.
const (
	InjectorWait     = "wait"
	InjectorCritique = "critique"
	InjectorCycle    = "cycle"
	InjectorCustom   = "custom"
)

// Injector appends a continuation nudge to a transcript. n is the number
// of nudges the controller has already injected in this session.
// Implementations must be pure.
type Injector interface {
	Inject(transcript string, n int) string
}

// FixedNudge always appends the same text.
type FixedNudge string

// Inject implements Injector.
func (f FixedNudge) Inject(transcript string, _ int) string {
	return transcript + string(f)
}

// CyclingNudge rotates through its nudges by injection count. Nudge text
// the model writes itself does not shift the rotation.
type CyclingNudge []string

// Inject implements Injector.
func (c CyclingNudge) Inject(transcript string, n int) string {
	if len(c) == 0 {
		return transcript
	}
	return transcript + c[n%len(c)]
}

// NewInjector returns the named policy. text is used by "custom" and
// nudges by "cycle" (the built-in pair when empty).
func NewInjector(name, text string, nudges []string) (Injector, error) {
	switch name {
	case "", InjectorWait:
		return FixedNudge(NudgeWait), nil
	case InjectorCritique:
		return FixedNudge(NudgeCritique), nil
	case InjectorCycle:
		if len(nudges) == 0 {
			nudges = []string{NudgeWait, NudgeCritique}
		}
		return CyclingNudge(nudges), nil
	case InjectorCustom:
		if text == "" {
			return nil, fmt.Errorf("thinking: nudge %q requires nudge_text", name)
		}
		return FixedNudge(text), nil
	default:
		return nil, fmt.Errorf("thinking: unknown nudge policy %q", name)
	}
}
