// Package prompt renders raw user input into the text prompt continued by
// the generation engine.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// DefaultSystemPrompt asks for step-by-step reasoning and a boxed answer.
const DefaultSystemPrompt = "Please reason step by step, and put your final answer within \\boxed{}."

// Template names.
const (
	TemplateChatML = "chatml"
	TemplateRaw    = "raw"
	TemplateCustom = "custom"
)

// chatML follows the Qwen3 chat template with add_generation_prompt. With
// thinking disabled the template emits an empty reasoning block, as the
// model was trained to expect.
const chatML = `{{if .System}}<|im_start|>system
{{.System}}<|im_end|>
{{end}}<|im_start|>user
{{.Input}}<|im_end|>
<|im_start|>assistant
{{if not .EnableThinking}}{{.Open}}

{{.Close}}

{{end}}`

const raw = `{{if .System}}{{.System}}

{{end}}{{.Input}}`

// Config selects and parameterizes the prompt template.
type Config struct {
	// Template is chatml, raw or custom.
	Template string `yaml:"template"`
	// Text is the text/template source used by the custom template. It
	// receives .System, .Input, .EnableThinking, .Open and .Close.
	Text string `yaml:"text"`
	// System is the system prompt. Nil uses DefaultSystemPrompt; an empty
	// string disables it.
	System *string `yaml:"system"`
	// EnableThinking is the chat template's reasoning toggle. Nil means true.
	// False renders an empty, closed reasoning block: such prompts serve
	// baseline runs only, and budget-forced runs reject them.
	EnableThinking *bool `yaml:"enable_thinking"`
	// PrefillOpenMarker appends the opening reasoning marker and a newline
	// for models whose template does not emit it.
	PrefillOpenMarker bool `yaml:"prefill_open_marker"`
}

func (c *Config) defaults() {
	if c.Template == "" {
		c.Template = TemplateChatML
	}
	if c.System == nil {
		s := DefaultSystemPrompt
		c.System = &s
	}
	if c.EnableThinking == nil {
		t := true
		c.EnableThinking = &t
	}
}

// Validate checks the template selection.
func (c Config) Validate() error {
	switch c.Template {
	case "", TemplateChatML, TemplateRaw:
		return nil
	case TemplateCustom:
		if strings.TrimSpace(c.Text) == "" {
			return errors.New("prompt: custom template requires text")
		}
		return nil
	default:
		return fmt.Errorf("prompt: unknown template %q", c.Template)
	}
}

type data struct {
	System         string
	Input          string
	EnableThinking bool
	Open           string
	Close          string
}

// Renderer renders prompts from a parsed template. It is safe for
// concurrent use.
type Renderer struct {
	tmpl    *template.Template
	system  string
	think   bool
	prefill bool
	open    string
	close   string
}

// New parses the configured template. openMarker and closeMarker are the reasoning
// markers exposed to templates and used by the prefill.
func New(cfg Config, openMarker, closeMarker string) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.defaults()

	src := chatML
	switch cfg.Template {
	case TemplateRaw:
		src = raw
	case TemplateCustom:
		src = cfg.Text
	}
	tmpl, err := template.New(cfg.Template).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("prompt: parsing %s template: %w", cfg.Template, err)
	}
	return &Renderer{
		tmpl:    tmpl,
		system:  *cfg.System,
		think:   *cfg.EnableThinking,
		prefill: cfg.PrefillOpenMarker,
		open:    openMarker,
		close:   closeMarker,
	}, nil
}

// Render implements thinking.Renderer.
func (r *Renderer) Render(input string) (string, error) {
	var buf bytes.Buffer
	err := r.tmpl.Execute(&buf, data{
		System:         r.system,
		Input:          input,
		EnableThinking: r.think,
		Open:           r.open,
		Close:          r.close,
	})
	if err != nil {
		return "", fmt.Errorf("prompt: render: %w", err)
	}
	if r.prefill && r.think && !strings.HasSuffix(buf.String(), r.open+"\n") {
		buf.WriteString(r.open)
		buf.WriteString("\n")
	}
	return buf.String(), nil
}
