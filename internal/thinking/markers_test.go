package thinking

import "testing"

func TestMarkers_Reasoning(t *testing.T) {
	t.Parallel()

	m := DefaultMarkers
	tests := []struct {
		name       string
		transcript string
		promptLen  int
		want       string
	}{
		{"after open", "P<think>\nabc", 1, "abc"},
		{"last open wins", "<think>old</think><think>new", 0, "new"},
		{"no open uses prompt offset", "prompt reasoning", 7, "reasoning"},
		{"prompt longer than transcript", "abc", 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := m.Reasoning(tt.transcript, tt.promptLen); got != tt.want {
				t.Errorf("Reasoning() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarkers_CloseBlockIdempotent(t *testing.T) {
	t.Parallel()

	m := DefaultMarkers
	once := m.CloseBlock("<think>x")
	if once != "<think>x\n</think>\n" {
		t.Fatalf("CloseBlock() = %q", once)
	}
	if twice := m.CloseBlock(once); twice != once {
		t.Errorf("second CloseBlock() = %q, want unchanged", twice)
	}
	// A close marker from an earlier block does not count.
	if got := m.CloseBlock("<think>a</think><think>b"); got != "<think>a</think><think>b\n</think>\n" {
		t.Errorf("CloseBlock() = %q", got)
	}
}

func TestMarkers_Split(t *testing.T) {
	t.Parallel()

	m := DefaultMarkers
	tests := []struct {
		name          string
		text          string
		wantReasoning string
		wantAnswer    string
		wantOK        bool
	}{
		{"well formed", "p<think>r</think>a", "r", "a", true},
		{"first close after last open", "<think>r</think>a</think>b", "r", "a</think>b", true},
		{"no open", "r</think>a", "", "", false},
		{"no close", "<think>r", "", "", false},
		{"empty", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, a, ok := m.Split(tt.text)
			if r != tt.wantReasoning || a != tt.wantAnswer || ok != tt.wantOK {
				t.Errorf("Split() = (%q, %q, %v), want (%q, %q, %v)",
					r, a, ok, tt.wantReasoning, tt.wantAnswer, tt.wantOK)
			}
		})
	}
}

func TestExtractBoxed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{`the answer is \boxed{42}.`, "42"},
		{`\boxed{1} then \boxed{ 2 }`, "2"},
		{`\boxed{\frac{1}{2}}`, `\frac{1}{2}`},
		{`\boxed{unterminated`, ""},
		{"no box", ""},
	}
	for _, tt := range tests {
		if got := ExtractBoxed(tt.text); got != tt.want {
			t.Errorf("ExtractBoxed(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
