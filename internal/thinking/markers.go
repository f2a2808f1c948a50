package thinking

import "strings"

// Markers are the delimiters of the reasoning block.
type Markers struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

// DefaultMarkers are the delimiters emitted by Qwen3 and DeepSeek-R1 style
// reasoning models.
var DefaultMarkers = Markers{Open: "<think>", Close: "</think>"}

// closing returns the text appended to force the reasoning block closed.
func (m Markers) closing() string {
	return "\n" + m.Close + "\n"
}

// Reasoning returns the reasoning region of transcript: the text after the
// last opening marker, or, when the model has not opened a block yet,
// everything after the first promptLen bytes.
func (m Markers) Reasoning(transcript string, promptLen int) string {
	if i := strings.LastIndex(transcript, m.Open); i >= 0 {
		return strings.TrimPrefix(transcript[i+len(m.Open):], "\n")
	}
	if promptLen > len(transcript) {
		return ""
	}
	return transcript[promptLen:]
}

// IsClosed reports whether the last reasoning block in transcript has a
// closing marker after it.
func (m Markers) IsClosed(transcript string) bool {
	closeAt := strings.LastIndex(transcript, m.Close)
	if closeAt < 0 {
		return false
	}
	return closeAt > strings.LastIndex(transcript, m.Open)
}

// CloseBlock appends the closing marker unless the block is already closed.
func (m Markers) CloseBlock(transcript string) string {
	if m.IsClosed(transcript) {
		return transcript
	}
	return transcript + m.closing()
}

// Split isolates the reasoning and answer segments of text. The reasoning
// segment lies between the last opening marker and the first closing
// marker after it; the answer is everything after that closing marker.
// ok is false when either marker is missing.
func (m Markers) Split(text string) (reasoning, answer string, ok bool) {
	openAt := strings.LastIndex(text, m.Open)
	if openAt < 0 {
		return "", "", false
	}
	body := text[openAt+len(m.Open):]
	closeAt := strings.Index(body, m.Close)
	if closeAt < 0 {
		return "", "", false
	}
	return body[:closeAt], body[closeAt+len(m.Close):], true
}
