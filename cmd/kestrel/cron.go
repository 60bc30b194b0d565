package main

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kestrel-agent/kestrel/internal/cron"
	"github.com/kestrel-agent/kestrel/internal/interfaces"
	"github.com/kestrel-agent/kestrel/internal/runlog"
)

func newCronCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs",
	}
	cmd.AddCommand(
		newCronListCmd(configPath),
		newCronAddCmd(configPath),
		newCronRemoveCmd(configPath),
		newCronRunsCmd(configPath),
	)
	return cmd
}

func newCronListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(*configPath)
			if err != nil {
				return err
			}
			jobs, err := rt.store.LoadJobs()
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("no scheduled jobs")
				return nil
			}
			for _, job := range jobs {
				state := "enabled"
				if !job.Enabled {
					state = "disabled"
				}
				last := "never"
				if job.LastRun != nil {
					last = job.LastRun.Format("2006-01-02 15:04")
				}
				fmt.Printf("%s  %-20q  %-14s  %-8s  %-8s  last run %s\n",
					job.ID, job.Name, job.Schedule, job.Channel, state, last)
			}
			return nil
		},
	}
}

func newCronAddCmd(configPath *string) *cobra.Command {
	var name, message, schedule, channelName, timezone string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a scheduled job",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(*configPath)
			if err != nil {
				return err
			}
			if name == "" || message == "" || schedule == "" {
				return fmt.Errorf("--name, --message, and --schedule are required")
			}
			if _, err := cron.Parse(schedule); err != nil {
				return err
			}
			jobs, err := rt.store.LoadJobs()
			if err != nil {
				return err
			}
			job := interfaces.Job{
				ID:       uuid.NewString(),
				Name:     name,
				Message:  message,
				Schedule: schedule,
				Channel:  channelName,
				Timezone: timezone,
				Enabled:  true,
			}
			if err := rt.store.SaveJobs(append(jobs, job)); err != nil {
				return err
			}
			fmt.Println("created", job.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&message, "message", "", "prompt delivered when the job fires")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression or macro like @daily")
	cmd.Flags().StringVar(&channelName, "channel", "cli", "channel for the reply")
	cmd.Flags().StringVar(&timezone, "tz", "", "IANA timezone, default local")
	return cmd
}

func newCronRemoveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(*configPath)
			if err != nil {
				return err
			}
			jobs, err := rt.store.LoadJobs()
			if err != nil {
				return err
			}
			for i, job := range jobs {
				if job.ID == args[0] {
					if err := rt.store.SaveJobs(append(jobs[:i], jobs[i+1:]...)); err != nil {
						return err
					}
					fmt.Println("removed", job.ID)
					return nil
				}
			}
			return fmt.Errorf("no job with id %s", args[0])
		},
	}
}

func newCronRunsCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent job executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(*configPath)
			if err != nil {
				return err
			}
			runs, err := runlog.Open(filepath.Join(rt.cfg.Workspace, "runs.db"))
			if err != nil {
				return err
			}
			defer runs.Close()

			recent, err := runs.Recent(limit)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				fmt.Println("no recorded runs")
				return nil
			}
			for _, run := range recent {
				line := run.Output
				if run.Status != "ok" {
					line = run.Error
				}
				fmt.Printf("%s  %-20q  %-5s  %s\n",
					run.StartedAt.Local().Format("2006-01-02 15:04"), run.Name, run.Status, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
