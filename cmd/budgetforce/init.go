package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/budgetforce/internal/config"
	"github.com/flemzord/budgetforce/internal/thinking"
	"github.com/flemzord/budgetforce/internal/tokens"
	"github.com/flemzord/budgetforce/pkg/app"
)

// initAnswers holds the wizard choices.
type initAnswers struct {
	EngineKind string
	BaseURL    string
	Model      string
	APIKeyEnv  string
	Tokenizer  string
	Budget     string
	Nudge      string
	Bind       string
}

func defaultInitAnswers() initAnswers {
	return initAnswers{
		EngineKind: config.EngineVLLM,
		BaseURL:    "http://localhost:8000/v1",
		Tokenizer:  tokens.KindTiktoken,
		Budget:     strconv.Itoa(thinking.DefaultBudget),
		Nudge:      thinking.InjectorWait,
		Bind:       "127.0.0.1:8080",
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = app.DefaultConfigPath()
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			a := defaultInitAnswers()
			if err := initForm(&a).Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}

			data, err := buildInitConfig(a)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

func initForm(a *initAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Inference engine").
				Options(
					huh.NewOption("vLLM completions API", config.EngineVLLM),
					huh.NewOption("OpenAI-compatible (openai-go SDK)", config.EngineOpenAI),
				).
				Value(&a.EngineKind),
			huh.NewInput().
				Title("Base URL").
				Value(&a.BaseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Model").
				Description("As served by the engine, e.g. Qwen/Qwen3-14B").
				Value(&a.Model).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("model is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("API key environment variable").
				Description("Leave empty for a local server without auth").
				Value(&a.APIKeyEnv),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Token counter").
				Options(
					huh.NewOption("tiktoken (cl100k_base)", tokens.KindTiktoken),
					huh.NewOption("estimate (4 chars per token, offline)", tokens.KindEstimate),
				).
				Value(&a.Tokenizer),
			huh.NewInput().
				Title("Thinking budget (tokens)").
				Value(&a.Budget).
				Validate(func(s string) error {
					_, err := parseBudget(s)
					return err
				}),
			huh.NewSelect[string]().
				Title("Continuation nudge when the model stops thinking early").
				Options(
					huh.NewOption(`"Wait!"`, thinking.InjectorWait),
					huh.NewOption(`"Was there any loophole in my thought?"`, thinking.InjectorCritique),
					huh.NewOption("Alternate both", thinking.InjectorCycle),
				).
				Value(&a.Nudge),
			huh.NewInput().
				Title("Gateway bind address").
				Value(&a.Bind),
		),
	)
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

func parseBudget(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return n, nil
}

// buildInitConfig renders a minimal config for a, checked by a full
// parse, default and validate pass.
func buildInitConfig(a initAnswers) ([]byte, error) {
	budget, err := parseBudget(a.Budget)
	if err != nil {
		return nil, fmt.Errorf("budget: %w", err)
	}

	backend := map[string]any{
		"base_url": a.BaseURL,
		"model":    a.Model,
	}
	if a.APIKeyEnv != "" {
		backend["api_key_env"] = a.APIKeyEnv
	}
	doc := map[string]any{
		"version": "1",
		"engine": map[string]any{
			"kind":       a.EngineKind,
			a.EngineKind: backend,
		},
		"tokenizer": map[string]any{"kind": a.Tokenizer},
		"thinking": map[string]any{
			"budget": budget,
			"nudge":  a.Nudge,
		},
		"gateway": map[string]any{"bind": a.Bind},
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Defaults(app.DefaultDataDir())
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return data, nil
}
