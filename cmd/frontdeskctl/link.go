package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/frontdesk/internal/api"
	"github.com/matheus3301/frontdesk/internal/client"
	"github.com/matheus3301/frontdesk/internal/comms"
	"github.com/matheus3301/frontdesk/internal/dashboard"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show doctor link status",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var st api.Status
			if err := a.call(api.LinkServiceName, "GetStatus", nil, &st); err != nil {
				return err
			}
			a.print(st, func() {
				fmt.Printf("Workspace: %s\n", st.Workspace)
				fmt.Printf("Link:      %s (transport=%v presence=%v)\n", st.State, st.Transport, st.Presence)
				fmt.Printf("Connected: %v (%d client)\n", st.IsConnected, st.ConnectedClients)
				if st.LastPush != "" {
					fmt.Printf("Last push: %s\n", st.LastPush)
				}
				fmt.Printf("Uptime:    %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
			})
			return nil
		},
	}
}

func (a *app) pushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push the dashboard to the doctor now",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var res dashboard.PushResult
			if err := a.call(api.LinkServiceName, "PushDashboard", nil, &res); err != nil {
				return err
			}
			a.print(res, func() {
				if !res.Success {
					fmt.Printf("Push failed: %s\n", res.Error)
					return
				}
				fmt.Printf("Pushed: %d today, %d this week, %d waiting\n",
					res.Data.TodayPatientsCount, res.Data.WeekPatientsCount, res.Data.WaitingPatientsCount)
			})
			return nil
		},
	}
}

func (a *app) sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send to the doctor",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "message <text>",
		Short: "Send an encrypted chat message",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var res comms.Result
			if err := a.call(api.LinkServiceName, "SendMessage", map[string]string{"message": args[0]}, &res); err != nil {
				return err
			}
			a.printResult(res)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "patient <id>",
		Short: "Forward a patient record",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid patient id %q", args[0])
			}
			var res comms.Result
			if err := a.call(api.LinkServiceName, "SendPatientData", map[string]int64{"patientId": id}, &res); err != nil {
				return err
			}
			a.printResult(res)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "file <patient-id> <path>",
		Short: "Send a file attached to a patient",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid patient id %q", args[0])
			}
			// The daemon reads the file, so it needs an absolute path.
			path, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			var res comms.Result
			if err := a.call(api.LinkServiceName, "SendFile", map[string]any{"patientId": id, "path": path}, &res); err != nil {
				return err
			}
			a.printResult(res)
			return nil
		},
	})
	return cmd
}

func (a *app) printResult(res comms.Result) {
	a.print(res, func() {
		if res.Success {
			fmt.Println("Sent.")
			return
		}
		fmt.Printf("Not sent: %s\n", res.Error)
	})
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [prefix]",
		Short: "Stream daemon events, optionally filtered by kind prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			err := a.client.Watch(ctx, api.LinkServiceName, prefix, func(evt client.Event) error {
				a.print(evt, func() {
					fmt.Printf("%s  %-26s %s\n", evt.Timestamp, evt.Kind, string(evt.Payload))
				})
				return nil
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
