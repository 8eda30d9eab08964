package violationsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tsgsafety/osha_tracker/config"
	"gorm.io/gorm"
)

// Sync modes accepted by SyncRequest.
const (
	ModeTargeted   = "targeted"
	ModeBulk       = "bulk"
	ModeInspection = "inspection"
)

// SyncRequest is the transport-neutral description of one run, used by the
// Pub/Sub trigger and the CLI. Zero values fall back to the cron defaults.
type SyncRequest struct {
	Mode           string  `json:"mode"`
	ActivityNr     string  `json:"activity_nr,omitempty"`
	DaysBack       int     `json:"days_back,omitempty"`
	MinRecheckDays int     `json:"min_recheck_days,omitempty"`
	Limit          int     `json:"limit,omitempty"`
	MaxRequests    int     `json:"max_requests,omitempty"`
	DelaySeconds   float64 `json:"delay_seconds,omitempty"`
}

// Cron defaults.
var (
	DefaultCronTargeted = TargetedParams{DaysBack: 180, MinRecheckDays: 7, Limit: 50, MaxRequests: 8}
	DefaultCronBulk     = BulkParams{DaysBack: 30, Limit: 500, MaxRequests: 8}
)

// BuildEngine wires the production engine: DOL client behind a circuit
// breaker, batch fetcher sized from settings, and the optional Pub/Sub notifier.
func BuildEngine(db *gorm.DB, settings config.SyncSettings, opts ...EngineOption) (*Engine, error) {
	client, err := NewDOLClient(settings)
	if err != nil {
		return nil, err
	}
	fetcher := NewBatchFetcher(
		NewBreakerClient(client, settings.BreakerMaxFailures, 0),
		WithChunkSize(settings.ChunkSize),
		WithPageSize(settings.PageSize),
	)
	if config.PublishNewViolationEvents() {
		opts = append([]EngineOption{WithNotifier(PubSubNotifier{Topic: settings.ViolationEventTopic})}, opts...)
	}
	return NewEngine(db, fetcher, settings, opts...), nil
}

// Service runs audited syncs. A fresh engine is built for every run.
type Service struct {
	DB        *gorm.DB
	Settings  config.SyncSettings
	Recorder  *Recorder
	NewEngine func() (*Engine, error)
}

func NewService(db *gorm.DB, settings config.SyncSettings, cache *StatusCache) *Service {
	return &Service{
		DB:       db,
		Settings: settings,
		Recorder: NewRecorder(db, cache, nil),
		NewEngine: func() (*Engine, error) {
			return BuildEngine(db, settings)
		},
	}
}

func (s *Service) withEngine(ctx context.Context, job, triggeredBy string, fn func(ctx context.Context, e *Engine) (*SyncRunStatistics, error)) (*SyncRunStatistics, error) {
	return s.Recorder.Run(ctx, job, triggeredBy, func(ctx context.Context) (*SyncRunStatistics, error) {
		e, err := s.NewEngine()
		if err != nil {
			return nil, fmt.Errorf("build sync engine: %w", err)
		}
		return fn(ctx, e)
	})
}

func (s *Service) RunTargeted(ctx context.Context, triggeredBy string, p TargetedParams) (*SyncRunStatistics, error) {
	return s.withEngine(ctx, JobTargeted, triggeredBy, func(ctx context.Context, e *Engine) (*SyncRunStatistics, error) {
		return e.RunTargetedSync(ctx, p)
	})
}

func (s *Service) RunBulk(ctx context.Context, triggeredBy string, p BulkParams) (*SyncRunStatistics, error) {
	return s.withEngine(ctx, JobBulk, triggeredBy, func(ctx context.Context, e *Engine) (*SyncRunStatistics, error) {
		return e.RunBulkSync(ctx, p)
	})
}

func (s *Service) RunInspection(ctx context.Context, triggeredBy, activityNr string) (*SyncRunStatistics, error) {
	return s.withEngine(ctx, JobInspection, triggeredBy, func(ctx context.Context, e *Engine) (*SyncRunStatistics, error) {
		return e.SyncInspection(ctx, activityNr)
	})
}

// Dispatch runs the sync described by req.
func (s *Service) Dispatch(ctx context.Context, triggeredBy string, req SyncRequest) (*SyncRunStatistics, error) {
	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case "", ModeTargeted:
		p := DefaultCronTargeted
		p.Delay = s.Settings.DefaultDelay
		if req.DaysBack > 0 {
			p.DaysBack = req.DaysBack
		}
		if req.MinRecheckDays > 0 {
			p.MinRecheckDays = req.MinRecheckDays
		}
		if req.Limit > 0 {
			p.Limit = req.Limit
		}
		if req.MaxRequests > 0 {
			p.MaxRequests = req.MaxRequests
		}
		if req.DelaySeconds > 0 {
			p.Delay = time.Duration(req.DelaySeconds * float64(time.Second))
		}
		return s.RunTargeted(ctx, triggeredBy, p)
	case ModeBulk:
		if !config.BulkSyncEnabled() {
			return nil, fmt.Errorf("bulk violation sync is disabled")
		}
		p := DefaultCronBulk
		if req.DaysBack > 0 {
			p.DaysBack = req.DaysBack
		}
		if req.Limit > 0 {
			p.Limit = req.Limit
		}
		if req.MaxRequests > 0 {
			p.MaxRequests = req.MaxRequests
		}
		return s.RunBulk(ctx, triggeredBy, p)
	case ModeInspection:
		if strings.TrimSpace(req.ActivityNr) == "" {
			return nil, fmt.Errorf("activity_nr is required for mode %q", ModeInspection)
		}
		return s.RunInspection(ctx, triggeredBy, strings.TrimSpace(req.ActivityNr))
	default:
		return nil, fmt.Errorf("unknown sync mode %q", req.Mode)
	}
}
