package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/budgetforce/internal/config"
	"github.com/flemzord/budgetforce/internal/security"
	"github.com/flemzord/budgetforce/pkg/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	check := &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := runParams(cmd)
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}
			cfg, cfgPath, err := app.LoadConfig(params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if p, _ := cmd.Flags().GetBool("print"); p {
				return printConfig(out, cfg, app.NewRedactor(cfg))
			}
			fmt.Fprintf(out, "Configuration OK (%s)\n", cfgPath)
			fmt.Fprintf(out, "  engine:    %s %s\n", cfg.Engine.Kind, cfg.Engine.Model())
			fmt.Fprintf(out, "  tokenizer: %s\n", cfg.Tokenizer.Kind)
			fmt.Fprintf(out, "  budget:    %d (max %d iterations)\n", cfg.Thinking.Budget, cfg.Thinking.MaxIterations)
			fmt.Fprintf(out, "  gateway:   %s\n", cfg.Gateway.Bind)
			if cfg.Store.IsEnabled() {
				fmt.Fprintf(out, "  store:     %s\n", cfg.Store.Path)
			}
			return nil
		},
	}
	check.Flags().Bool("print", false, "Print the effective configuration with secrets redacted")
	cmd.AddCommand(check)
	return cmd
}

// printConfig writes cfg, defaults applied, as YAML with secrets replaced.
func printConfig(w io.Writer, cfg *config.Config, redactor *security.Redactor) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	redactor.RedactMap(doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
