package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/budgetforce/internal/config"
	"github.com/flemzord/budgetforce/internal/driver"
	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/internal/thinking"
	"github.com/flemzord/budgetforce/pkg/app"
)

const (
	modeThink    = runs.ModeThink
	modeBaseline = runs.ModeBaseline
)

// sessionCmd builds "run" (budget-forced) or "baseline" (single pass).
func sessionCmd(mode runs.Mode) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [question...]",
		Short: "Answer a question with the thinking phase forced to a token budget",
		Long: "Answer a question with the thinking phase forced to a token budget.\n" +
			"The question is read from the arguments, or from stdin when none are given or the only argument is \"-\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, mode, args)
		},
	}
	if mode == modeBaseline {
		cmd.Use = "baseline [question...]"
		cmd.Short = "Answer a question in one generation with no thinking budget"
		cmd.Long = ""
	} else {
		cmd.Flags().Int("budget", 0, "Thinking-token budget (default thinking.budget)")
		cmd.Flags().Bool("trace", false, "Log every controller event")
	}
	cmd.Flags().Bool("json", false, "Print the answer as JSON")
	cmd.Flags().StringP("output", "o", "", `Write the transcript and token stats to FILE ("auto" for output_<unix>.txt)`)
	addEngineFlags(cmd)
	return cmd
}

// addEngineFlags lets run, baseline and batch work without a config file.
func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("base-url", "", "Override the engine base URL")
	cmd.Flags().String("model", "", "Override the engine model")
}

// engineOverride applies --base-url and --model to the selected engine.
func engineOverride(cmd *cobra.Command) func(*config.Config) {
	baseURL, _ := cmd.Flags().GetString("base-url")
	model, _ := cmd.Flags().GetString("model")
	return func(c *config.Config) {
		if c.Engine.Kind == config.EngineOpenAI {
			if baseURL != "" {
				c.Engine.OpenAI.BaseURL = baseURL
			}
			if model != "" {
				c.Engine.OpenAI.Model = model
			}
			return
		}
		if baseURL != "" {
			c.Engine.VLLM.BaseURL = baseURL
		}
		if model != "" {
			c.Engine.VLLM.Model = model
		}
	}
}

func runSession(cmd *cobra.Command, mode runs.Mode, args []string) error {
	input, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	params := runParams(cmd)
	params.ConfigOptional = true
	params.Override = engineOverride(cmd)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	stack, err := app.Open(ctx, params)
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close(context.Background()) }()

	req := thinking.Request{Input: input, Budget: stack.Config.Thinking.Budget}
	if mode == modeThink {
		if cmd.Flags().Changed("budget") {
			req.Budget, _ = cmd.Flags().GetInt("budget")
		}
		if trace, _ := cmd.Flags().GetBool("trace"); trace {
			req.Observer = thinking.LogObserver(stack.Logger)
		}
	} else {
		req.Budget = 0
	}

	o := stack.Driver.Execute(ctx, driver.Job{Mode: mode, Request: req})
	if o.Err != nil {
		return o.Err
	}

	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if path == "auto" {
			path = fmt.Sprintf("output_%d.txt", time.Now().Unix())
		}
		if err := writeTranscript(path, o.Answer); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID string `json:"run_id"`
			*thinking.FinalAnswer
		}{o.Run.ID, o.Answer})
	}
	printAnswer(out, o.Answer)
	return nil
}

// readInput joins args, or reads all of r when args is empty or "-".
func readInput(r io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	input := strings.TrimSpace(string(data))
	if input == "" {
		return "", errors.New("no question given")
	}
	return input, nil
}

func printAnswer(w io.Writer, fa *thinking.FinalAnswer) {
	fmt.Fprintln(w, strings.TrimSpace(fa.AnswerSegment))
	fmt.Fprintln(w)
	if fa.BoxedAnswer != "" {
		fmt.Fprintf(w, "boxed: %s\n", fa.BoxedAnswer)
	}
	fmt.Fprintf(w, "%s, stop: %s", statsFooter(fa), fa.ThinkingStop)
	if fa.DegradedExtraction {
		fmt.Fprint(w, ", degraded extraction")
	}
	fmt.Fprintln(w)
}

func statsFooter(fa *thinking.FinalAnswer) string {
	return fmt.Sprintf("iterations: %d, prompt tokens: %d, thinking tokens: %d, total tokens: %d",
		fa.IterationCount, fa.PromptTokenCount, fa.ThinkingTokenCount, fa.TotalTokenCount)
}

// writeTranscript writes the full transcript followed by a stats line.
func writeTranscript(path string, fa *thinking.FinalAnswer) error {
	content := fa.FullTranscript + "\n" + statsFooter(fa) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
