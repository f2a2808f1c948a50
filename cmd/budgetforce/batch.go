package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flemzord/budgetforce/internal/driver"
	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/internal/thinking"
	"github.com/flemzord/budgetforce/pkg/app"
)

// batchLine is one JSONL input record.
type batchLine struct {
	ID     string `json:"id"`
	Input  string `json:"input"`
	Budget *int   `json:"budget"`
}

// batchResult is one JSONL output record.
type batchResult struct {
	Index  int                   `json:"index"`
	RunID  string                `json:"run_id"`
	Status runs.Status           `json:"status"`
	Answer *thinking.FinalAnswer `json:"answer,omitempty"`
	Error  string                `json:"error,omitempty"`
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Run many questions concurrently and write JSONL results",
		Long: "Run every question in FILE (\"-\" for stdin) through the driver's worker pool.\n" +
			"Each non-empty line is either plain text or a JSON object {\"id\", \"input\", \"budget\"}.\n" +
			"One JSON result per input is written in input order.",
		Args: cobra.ExactArgs(1),
		RunE: runBatch,
	}
	cmd.Flags().Int("budget", 0, "Default thinking-token budget for lines without one (default thinking.budget)")
	cmd.Flags().Bool("baseline", false, "Run baseline sessions instead of budget-forced ones")
	cmd.Flags().StringP("output", "o", "", "Write results to FILE instead of stdout")
	addEngineFlags(cmd)
	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		in = f
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

	budget := stack.Config.Thinking.Budget
	if cmd.Flags().Changed("budget") {
		budget, _ = cmd.Flags().GetInt("budget")
	}
	mode := modeThink
	if b, _ := cmd.Flags().GetBool("baseline"); b {
		mode = modeBaseline
	}

	jobs, err := parseBatch(in, mode, budget)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	logger := stack.Logger
	logger.Info("batch started", "jobs", len(jobs), "workers", stack.Driver.Workers(), "mode", mode)
	outcomes := stack.Driver.RunAll(ctx, jobs, func(o driver.Outcome) {
		logger.Info("batch job finished", "index", o.Index, "run", o.Run.ID, "status", o.Run.Status)
	})

	failed, err := writeBatchResults(out, outcomes)
	if err != nil {
		return err
	}
	logger.Info("batch finished", "jobs", len(outcomes), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(outcomes))
	}
	return nil
}

// parseBatch reads one job per non-empty line. Lines starting with "{" are
// decoded as batchLine.
func parseBatch(r io.Reader, mode runs.Mode, defaultBudget int) ([]driver.Job, error) {
	var jobs []driver.Job
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		req := thinking.Request{Input: line, Budget: defaultBudget}
		if strings.HasPrefix(line, "{") {
			var bl batchLine
			if err := json.Unmarshal([]byte(line), &bl); err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			if strings.TrimSpace(bl.Input) == "" {
				return nil, fmt.Errorf("line %d: input is required", n)
			}
			req.ID = bl.ID
			req.Input = bl.Input
			if bl.Budget != nil {
				if *bl.Budget < 0 {
					return nil, fmt.Errorf("line %d: budget must not be negative", n)
				}
				req.Budget = *bl.Budget
			}
		}
		if mode == modeBaseline {
			req.Budget = 0
		}
		jobs = append(jobs, driver.Job{Mode: mode, Request: req})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}
	return jobs, nil
}

// writeBatchResults writes one JSON line per outcome and returns the
// number of failures.
func writeBatchResults(w io.Writer, outcomes []driver.Outcome) (int, error) {
	enc := json.NewEncoder(w)
	failed := 0
	for _, o := range outcomes {
		res := batchResult{Index: o.Index, RunID: o.Run.ID, Status: o.Run.Status, Answer: o.Answer}
		if o.Err != nil {
			res.Error = o.Err.Error()
			failed++
		}
		if err := enc.Encode(res); err != nil {
			return failed, err
		}
	}
	return failed, nil
}
