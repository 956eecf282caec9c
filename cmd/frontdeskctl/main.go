package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/frontdesk/internal/client"
	"github.com/matheus3301/frontdesk/internal/workspace"
)

const callTimeout = 10 * time.Second

type app struct {
	workspace string
	json      bool
	client    *client.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "frontdeskctl",
		Short:         "Control a running frontdeskd",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.connect()
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a.client != nil {
				return a.client.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.workspace, "workspace", "", "workspace name (overrides config default)")
	root.PersistentFlags().BoolVar(&a.json, "json", false, "output in JSON format")

	root.AddCommand(
		a.statusCmd(),
		a.pushCmd(),
		a.sendCmd(),
		a.patientsCmd(),
		a.appointmentsCmd(),
		a.messagesCmd(),
		a.backupCmd(),
		a.watchCmd(),
	)
	return root
}

func (a *app) connect() error {
	name := workspace.Resolve(a.workspace)
	if err := workspace.ValidateName(name); err != nil {
		return err
	}
	a.workspace = name
	c, err := client.New(workspace.SocketPath(name))
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for workspace %q: %w", name, err)
	}
	a.client = c
	return nil
}

// call runs one unary RPC with the default timeout.
func (a *app) call(service, method string, req, resp any) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return a.client.Call(ctx, service, method, req, resp)
}

// print writes v as JSON when --json is set, otherwise runs human.
func (a *app) print(v any, human func()) {
	if a.json {
		outputJSON(v)
		return
	}
	human()
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
