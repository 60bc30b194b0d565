package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kestrel-agent/kestrel/internal/cron"
	"github.com/kestrel-agent/kestrel/internal/interfaces"
	"github.com/kestrel-agent/kestrel/internal/store"
)

// ScheduleTool lets the model manage the scheduled-job list.
type ScheduleTool struct {
	store *store.Store
}

func NewScheduleTool(s *store.Store) *ScheduleTool {
	return &ScheduleTool{store: s}
}

func (t *ScheduleTool) Name() string {
	return "schedule"
}

func (t *ScheduleTool) Description() string {
	return "Manage recurring jobs. Actions: create (name, message, schedule as a 5-field cron expression or @daily style macro, optional channel and timezone), list, remove (id), enable (id), disable (id)."
}

func (t *ScheduleTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{"create", "list", "remove", "enable", "disable"},
			},
			"name":     map[string]any{"type": "string"},
			"message":  map[string]any{"type": "string", "description": "Prompt delivered to the agent when the job fires."},
			"schedule": map[string]any{"type": "string", "description": "Cron expression, e.g. '0 8 * * 1-5' or '@daily'."},
			"channel":  map[string]any{"type": "string"},
			"timezone": map[string]any{"type": "string", "description": "IANA timezone name, e.g. 'Europe/Berlin'."},
			"id":       map[string]any{"type": "string"},
		},
		"required": []string{"action"},
	}
}

func (t *ScheduleTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	action, _ := args["action"].(string)
	switch action {
	case "create":
		return t.create(args)
	case "list":
		return t.list()
	case "remove":
		return t.setState(args, "remove")
	case "enable":
		return t.setState(args, "enable")
	case "disable":
		return t.setState(args, "disable")
	default:
		return "", fmt.Errorf("schedule: unknown action %q", action)
	}
}

func (t *ScheduleTool) create(args map[string]any) (string, error) {
	name, _ := args["name"].(string)
	message, _ := args["message"].(string)
	schedule, _ := args["schedule"].(string)
	channel, _ := args["channel"].(string)
	timezone, _ := args["timezone"].(string)
	if name == "" || message == "" || schedule == "" {
		return "", fmt.Errorf("schedule: create needs name, message, and schedule")
	}
	if _, err := cron.Parse(schedule); err != nil {
		return "", fmt.Errorf("schedule: %w", err)
	}
	if channel == "" {
		channel = "cli"
	}

	jobs, err := t.store.LoadJobs()
	if err != nil {
		return "", fmt.Errorf("schedule: %w", err)
	}
	job := interfaces.Job{
		ID:       uuid.NewString(),
		Name:     name,
		Message:  message,
		Schedule: schedule,
		Channel:  channel,
		Timezone: timezone,
		Enabled:  true,
	}
	if err := t.store.SaveJobs(append(jobs, job)); err != nil {
		return "", fmt.Errorf("schedule: %w", err)
	}
	return fmt.Sprintf("created job %q (%s) with id %s", name, schedule, job.ID), nil
}

func (t *ScheduleTool) list() (string, error) {
	jobs, err := t.store.LoadJobs()
	if err != nil {
		return "", fmt.Errorf("schedule: %w", err)
	}
	if len(jobs) == 0 {
		return "no scheduled jobs", nil
	}
	var b strings.Builder
	for _, job := range jobs {
		state := "enabled"
		if !job.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&b, "%s  %q  %s  %s  %s\n", job.ID, job.Name, job.Schedule, job.Channel, state)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (t *ScheduleTool) setState(args map[string]any, action string) (string, error) {
	id, _ := args["id"].(string)
	if id == "" {
		return "", fmt.Errorf("schedule: %s needs an id", action)
	}
	jobs, err := t.store.LoadJobs()
	if err != nil {
		return "", fmt.Errorf("schedule: %w", err)
	}
	for i := range jobs {
		if jobs[i].ID != id {
			continue
		}
		switch action {
		case "remove":
			jobs = append(jobs[:i], jobs[i+1:]...)
		case "enable":
			jobs[i].Enabled = true
		case "disable":
			jobs[i].Enabled = false
		}
		if err := t.store.SaveJobs(jobs); err != nil {
			return "", fmt.Errorf("schedule: %w", err)
		}
		return fmt.Sprintf("%sd job %s", action, id), nil
	}
	return "", fmt.Errorf("schedule: no job with id %s", id)
}
