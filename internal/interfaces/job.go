package interfaces

import "time"

// Job is a cron-style scheduled message. The scheduler is the only
// runtime mutator of Enabled and LastRun.
type Job struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Message  string            `json:"message"`
	Schedule string            `json:"schedule"`
	Channel  string            `json:"channel"`
	Enabled  bool              `json:"enabled"`
	Timezone string            `json:"timezone,omitempty"`
	LastRun  *time.Time        `json:"last_run,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
