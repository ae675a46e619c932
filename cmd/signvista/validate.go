package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/signvista/internal/config"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and report every problem",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			problems := config.Validate(cfg)
			for _, p := range problems {
				fmt.Fprintln(out, "-", p)
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d configuration problem(s)", len(problems))
			}

			fmt.Fprintf(out, "configuration ok: strategy=%s fallback=%t\n", cfg.PredictionStrategy(), cfg.FallbackToLegacy())
			for _, name := range config.ModuleNames {
				mc, _ := cfg.ModuleConfig(name)
				fmt.Fprintf(out, "  %-12s enabled=%-5t priority=%d threshold=%.2f model=%s\n",
					name, mc.Enabled, mc.Priority, mc.ConfidenceThreshold, mc.ModelPath)
			}
			return nil
		},
	}
}
