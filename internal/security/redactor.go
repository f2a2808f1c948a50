// Package security keeps engine credentials out of logs and bounds what
// HTTP clients can ask of the server.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches config keys that likely hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|api_key|authorization)`)

// Redactor replaces secret values in strings and config maps. It combines
// patterns for known key formats with literal values registered at
// runtime, such as the configured engine API key. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern adds a compiled pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers a secret to redact verbatim. Values shorter than
// four bytes are ignored; "EMPTY" placeholder keys are not secrets.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 4 || secret == "EMPTY" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact replaces every known secret in s with RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap walks a decoded config document and replaces values under
// secret-looking keys. Used by `config check --print`.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if secretKeyPattern.MatchString(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = RedactPlaceholder
				continue
			}
		}
		switch val := v.(type) {
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					r.RedactMap(sub)
				}
			}
		case string:
			m[k] = r.Redact(val)
		}
	}
}

// DefaultPatterns returns patterns for key formats an inference client is
// likely to handle.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// OpenAI-style keys, including sk-proj-.
		regexp.MustCompile(`sk-[a-zA-Z0-9_\-]{20,}`),
		// Hugging Face tokens.
		regexp.MustCompile(`hf_[a-zA-Z0-9]{20,}`),
		// Bearer credentials in echoed headers.
		regexp.MustCompile(`(?i)bearer [a-zA-Z0-9._\-]{16,}`),
	}
}
