package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/modules/store/sqlite"
	"github.com/flemzord/budgetforce/pkg/app"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored runs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			mode, _ := cmd.Flags().GetString("mode")
			status, _ := cmd.Flags().GetString("status")
			asJSON, _ := cmd.Flags().GetBool("json")

			return withStore(cmd, func(ctx context.Context, s runs.Store) error {
				sums, err := s.List(ctx, runs.ListOptions{
					Limit:  limit,
					Mode:   runs.Mode(mode),
					Status: runs.Status(status),
				})
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(sums)
				}
				printSummaries(cmd.OutOrStdout(), sums)
				return nil
			})
		},
	}
	list.Flags().Int("limit", runs.DefaultListLimit, "Maximum number of runs")
	list.Flags().String("mode", "", "Filter by mode (think, baseline)")
	list.Flags().String("status", "", "Filter by status")
	list.Flags().Bool("json", false, "Print JSON")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print one run with its answer and trace events as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, _ := cmd.Flags().GetBool("events")
			return withStore(cmd, func(ctx context.Context, s runs.Store) error {
				run, err := s.Get(ctx, args[0])
				if errors.Is(err, runs.ErrNotFound) {
					return fmt.Errorf("run %s not found", args[0])
				}
				if err != nil {
					return err
				}
				if !events {
					run.Events = nil
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			})
		},
	}
	show.Flags().Bool("events", true, "Include trace events")

	cmd.AddCommand(list, show)
	return cmd
}

// withStore opens the configured run store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(context.Context, runs.Store) error) error {
	params := runParams(cmd)
	params.ConfigOptional = true
	cfg, _, err := app.LoadDefaults(params)
	if err != nil {
		return err
	}
	if !cfg.Store.IsEnabled() {
		return errors.New("run store is disabled (store.enabled: false)")
	}
	if err := cfg.Store.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := sqlite.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(ctx, s)
}

func printSummaries(w io.Writer, sums []runs.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODE\tSTATUS\tBUDGET\tITER\tTHINKING\tBOXED\tSTARTED\tDURATION")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			s.ID, s.Mode, s.Status, s.Budget, s.IterationCount, s.ThinkingTokens,
			s.BoxedAnswer, s.StartedAt.Local().Format(time.DateTime), s.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
}
