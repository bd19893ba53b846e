package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bilisub/internal/platform/bilibili"
	"bilisub/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, external tools, and platform reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			results = append(results, preflight.CheckBind(cfg.Paths.APIBind))
			if !offline {
				platform, err := bilibili.NewFromConfig(cfg, logger)
				if err != nil {
					return err
				}
				results = append(results, preflight.CheckHealth(cmd.Context(), platform))
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.Name, colorCheck(out, r.Passed, r.Optional), r.Detail})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Check", "Result", "Detail"}, rows, nil))

			if failed := preflight.Failures(results); len(failed) > 0 {
				fmt.Fprintf(out, "%d required check(s) failed\n", len(failed))
				return &exitError{code: 1}
			}
			fmt.Fprintln(out, "All required checks passed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the platform reachability check")
	return cmd
}
