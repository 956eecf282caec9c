package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/matheus3301/frontdesk/internal/config"
	"github.com/matheus3301/frontdesk/internal/daemon"
	"github.com/matheus3301/frontdesk/internal/workspace"
)

func main() {
	var workspaceFlag string

	cmd := &cobra.Command{
		Use:          "frontdeskd",
		Short:        "Front desk daemon: doctor link, dashboard sync and local records",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			name := workspace.Resolve(workspaceFlag)
			if err := workspace.ValidateName(name); err != nil {
				return err
			}

			cfgPath := workspace.ConfigPath()
			cfg, err := config.LoadOrDefault(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if _, err := config.EnsureClientID(cfgPath, cfg); err != nil {
				return fmt.Errorf("save client id: %w", err)
			}

			app := fx.New(
				daemon.Module(daemon.Params{Workspace: name, Config: cfg}),
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
	cmd.Flags().StringVar(&workspaceFlag, "workspace", "", "workspace name (overrides config default)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
