package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))
			fmt.Fprintf(out, "Negotiation: max_rounds=%d, round_timeout=%s, llm_retries=%d\n",
				cfg.Negotiation.MaxRounds, cfg.Negotiation.RoundTimeout, cfg.Negotiation.LLMRetries)

			if err := os.MkdirAll(cfg.CodeGen.OutputPath, 0o755); err != nil {
				return fmt.Errorf("codegen output path not writable: %w", err)
			}
			fmt.Fprintf(out, "Codegen output: %s (%s)\n", cfg.CodeGen.OutputPath, cfg.CodeGen.Language)
			return nil
		},
	}
}
