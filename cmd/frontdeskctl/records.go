package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matheus3301/frontdesk/internal/api"
	"github.com/matheus3301/frontdesk/internal/backup"
	"github.com/matheus3301/frontdesk/internal/store"
)

func (a *app) patientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "Manage the patient queue",
	}

	var p store.Patient
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p.Name = args[0]
			var saved store.Patient
			if err := a.call(api.PatientServiceName, "AddPatient", p, &saved); err != nil {
				return err
			}
			a.print(saved, func() {
				fmt.Printf("Added patient %d (%s)\n", saved.ID, saved.Status)
			})
			return nil
		},
	}
	add.Flags().IntVar(&p.Age, "age", 0, "age in years")
	add.Flags().StringVar(&p.Gender, "gender", "", "gender")
	add.Flags().StringVar(&p.Phone, "phone", "", "phone number")
	add.Flags().StringVar(&p.Address, "address", "", "address")
	add.Flags().StringVar(&p.Notes, "notes", "", "free-form notes")
	add.Flags().StringVar(&p.Status, "status", "", "initial status (default waiting)")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a patient through the queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid patient id %q", args[0])
			}
			var saved store.Patient
			if err := a.call(api.PatientServiceName, "UpdateStatus", map[string]any{"id": id, "status": args[1]}, &saved); err != nil {
				return err
			}
			a.print(saved, func() {
				fmt.Printf("Patient %d is now %s\n", saved.ID, saved.Status)
			})
			return nil
		},
	})

	var date string
	today := &cobra.Command{
		Use:   "today",
		Short: "List today's patients",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var resp struct {
				Patients []store.Patient `json:"patients"`
			}
			if err := a.call(api.PatientServiceName, "ListToday", map[string]string{"date": date}, &resp); err != nil {
				return err
			}
			a.print(resp, func() {
				if len(resp.Patients) == 0 {
					fmt.Println("No patients.")
					return
				}
				for _, pt := range resp.Patients {
					at := "walk-in"
					if pt.AppointmentTime != nil {
						at = *pt.AppointmentTime
					}
					fmt.Printf("%5d  %-8s %-12s %s\n", pt.ID, at, pt.Status, pt.Name)
				}
			})
			return nil
		},
	}
	today.Flags().StringVar(&date, "date", "", "day to list (YYYY-MM-DD), default today")
	cmd.AddCommand(today)
	return cmd
}

func (a *app) appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Manage appointments",
	}

	var appt store.Appointment
	add := &cobra.Command{
		Use:   "add",
		Short: "Book an appointment",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var saved store.Appointment
			if err := a.call(api.PatientServiceName, "AddAppointment", appt, &saved); err != nil {
				return err
			}
			a.print(saved, func() {
				fmt.Printf("Booked appointment %d on %s %s\n", saved.ID, saved.Date, saved.Time)
			})
			return nil
		},
	}
	add.Flags().Int64Var(&appt.PatientID, "patient-id", 0, "existing patient id")
	add.Flags().StringVar(&appt.PatientName, "name", "", "patient name when not linked to a record")
	add.Flags().StringVar(&appt.Date, "date", "", "date (YYYY-MM-DD)")
	add.Flags().StringVar(&appt.Time, "time", "", "time (HH:MM)")
	add.Flags().StringVar(&appt.Notes, "notes", "", "notes")
	_ = add.MarkFlagRequired("date")
	cmd.AddCommand(add)
	return cmd
}

func (a *app) messagesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Show recent chat messages",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var resp struct {
				Messages []store.Message `json:"messages"`
			}
			if err := a.call(api.PatientServiceName, "ListMessages", map[string]int{"limit": limit}, &resp); err != nil {
				return err
			}
			a.print(resp, func() {
				for _, m := range resp.Messages {
					fmt.Printf("[%s] %s\n", m.Sender, m.Message)
				}
			})
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of messages")
	return cmd
}

func (a *app) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list and restore record backups",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Write a backup now",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var info backup.Info
			if err := a.call(api.BackupServiceName, "Create", nil, &info); err != nil {
				return err
			}
			a.print(info, func() { printBackup(info) })
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var resp struct {
				Backups []backup.Info `json:"backups"`
			}
			if err := a.call(api.BackupServiceName, "List", nil, &resp); err != nil {
				return err
			}
			a.print(resp, func() {
				if len(resp.Backups) == 0 {
					fmt.Println("No backups found.")
					return
				}
				for _, b := range resp.Backups {
					printBackup(b)
				}
			})
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restore [id|file]",
		Short: "Restore a backup (latest when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			var info backup.Info
			if err := a.call(api.BackupServiceName, "Restore", map[string]string{"ref": ref}, &info); err != nil {
				return err
			}
			a.print(info, func() {
				fmt.Print("Restored ")
				printBackup(info)
			})
			return nil
		},
	})
	return cmd
}

func printBackup(b backup.Info) {
	fmt.Printf("%s  %s  %d patients, %d appointments\n",
		b.ID, b.CreatedAt.Local().Format("2006-01-02 15:04"), b.Patients, b.Appointments)
}
