package models

import "time"

const (
	CronRunStatusRunning = "running"
	CronRunStatusSuccess = "success"
	CronRunStatusFailed  = "failed"
)

const (
	CronTriggeredCron   = "cron"
	CronTriggeredManual = "manual"
	CronTriggeredPubSub = "pubsub"
	CronTriggeredCLI    = "cli"
)

// CronRun is the audit row for one sync invocation.
type CronRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	JobName       string     `gorm:"index;size:100;not null" json:"job_name"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	CorrelationId string     `gorm:"size:64" json:"correlation_id"`
	StartedAt     time.Time  `gorm:"index;not null" json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	Details       string     `gorm:"type:text" json:"details"`
	Error         string     `gorm:"type:text" json:"error"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
