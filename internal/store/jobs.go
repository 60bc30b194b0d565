package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
)

// LoadJobs reads the scheduled-job list. A missing file is an empty list.
// A corrupt file is logged and treated as empty rather than taking the
// scheduler down.
func (s *Store) LoadJobs() ([]interfaces.Job, error) {
	data, err := os.ReadFile(s.jobsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs: %w", err)
	}
	var jobs []interfaces.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		s.log.Warn("jobs file is undecodable, starting with an empty list", "error", err)
		return nil, nil
	}
	return jobs, nil
}

// SaveJobs replaces the scheduled-job list in full.
func (s *Store) SaveJobs(jobs []interfaces.Job) error {
	if jobs == nil {
		jobs = []interfaces.Job{}
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode jobs: %w", err)
	}
	if err := writeFileAtomic(s.jobsPath(), append(data, '\n')); err != nil {
		return fmt.Errorf("save jobs: %w", err)
	}
	return nil
}
