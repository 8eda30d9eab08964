package violationsync

import (
	"fmt"
	"time"
)

// RunState is the orchestrator's position in a run.
type RunState string

const (
	StateSelecting   RunState = "SELECTING"
	StateFetching    RunState = "FETCHING"
	StateReconciling RunState = "RECONCILING"
	StateAggregating RunState = "AGGREGATING"
	StateDone        RunState = "DONE"
	StateFailed      RunState = "FAILED"
)

// SyncRunStatistics is returned to callers and stored as the audit details blob.
// Field names are consumed by the dashboard and must stay stable.
type SyncRunStatistics struct {
	InspectionsChecked           int      `json:"inspections_checked"`
	ViolationsFetched            int      `json:"violations_fetched"`
	ViolationsInserted           int      `json:"violations_inserted"`
	ViolationsUpdated            int      `json:"violations_updated"`
	ViolationsSkipped            int      `json:"violations_skipped"`
	InspectionsWithNewViolations int      `json:"inspections_with_new_violations"`
	Errors                       int      `json:"errors"`
	Logs                         []string `json:"logs"`

	ViolationsUnchanged int        `json:"violations_unchanged"`
	APIRequestsMade     int        `json:"api_requests_made"`
	InspectionsDeferred int        `json:"inspections_deferred"`
	State               RunState   `json:"state"`
	StartedAt           time.Time  `json:"started_at"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
}

func newStatistics(now time.Time) *SyncRunStatistics {
	return &SyncRunStatistics{
		Logs:      []string{},
		State:     StateSelecting,
		StartedAt: now,
	}
}

// logf appends a timestamped progress line.
func (s *SyncRunStatistics) logf(now time.Time, format string, args ...any) {
	s.Logs = append(s.Logs, fmt.Sprintf("[%s] %s", now.UTC().Format("15:04:05"), fmt.Sprintf(format, args...)))
}

func (s *SyncRunStatistics) errorf(now time.Time, format string, args ...any) {
	s.Errors++
	s.logf(now, "ERROR: "+format, args...)
}

// Failed reports whether the run ended in the FAILED state.
func (s *SyncRunStatistics) Failed() bool {
	return s.State == StateFailed
}
