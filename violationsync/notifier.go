package violationsync

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tsgsafety/osha_tracker/config"
)

// NewViolationsEvent is published once per inspection that received new citations in a run.
type NewViolationsEvent struct {
	ActivityNr          string          `json:"activity_nr"`
	EstabName           string          `json:"estab_name,omitempty"`
	NewCount            int             `json:"new_count"`
	TotalCurrentPenalty decimal.Decimal `json:"total_current_penalty"`
	TotalInitialPenalty decimal.Decimal `json:"total_initial_penalty"`
	DetectedAt          time.Time       `json:"detected_at"`
	Job                 string          `json:"job"`
}

// Notifier receives new-violation events. Failures never fail a run.
type Notifier interface {
	NotifyNewViolations(ctx context.Context, ev NewViolationsEvent) error
}

// PubSubNotifier publishes events as JSON to a Pub/Sub topic.
type PubSubNotifier struct {
	Topic string
}

func (n PubSubNotifier) NotifyNewViolations(ctx context.Context, ev NewViolationsEvent) error {
	_, err := config.PublishJSON(ctx, n.Topic, ev, map[string]string{
		"event":       "new_violations",
		"activity_nr": ev.ActivityNr,
	})
	return err
}
