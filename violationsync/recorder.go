package violationsync

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tsgsafety/osha_tracker/config"
	"github.com/tsgsafety/osha_tracker/models"
	"github.com/tsgsafety/osha_tracker/utils"
	"gorm.io/gorm"
)

// Recorder writes the cron_runs audit trail. Audit failures are logged and
// never change the outcome of a run.
type Recorder struct {
	db     *gorm.DB
	cache  *StatusCache
	now    func() time.Time
	logger *logrus.Logger
}

func NewRecorder(db *gorm.DB, cache *StatusCache, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{db: db, cache: cache, now: now, logger: config.GetLogger()}
}

// Start inserts a running audit row. It returns nil when the row could not be written.
func (r *Recorder) Start(ctx context.Context, job, triggeredBy string) *models.CronRun {
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	run := &models.CronRun{
		JobName:       job,
		Status:        models.CronRunStatusRunning,
		TriggeredBy:   triggeredBy,
		CorrelationId: cid,
		StartedAt:     r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		config.LogError(r.logger, "violationsync", "Recorder.Start", "create cron run", job, err)
		return nil
	}
	return run
}

// Finish closes the audit row with the statistics and the error, if any.
func (r *Recorder) Finish(ctx context.Context, run *models.CronRun, stats *SyncRunStatistics, runErr error) {
	if run == nil {
		return
	}
	finishedAt := r.now().UTC()
	status := models.CronRunStatusSuccess
	errText := ""
	if runErr != nil {
		status = models.CronRunStatusFailed
		errText = runErr.Error()
	} else if stats != nil && stats.Failed() {
		status = models.CronRunStatusFailed
		errText = "run ended in state FAILED"
	}

	details := ""
	if stats != nil {
		if s, err := utils.MarshalToJSON(stats); err == nil {
			details = s
		}
	}

	if err := r.db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":      status,
		"finished_at": finishedAt,
		"duration_ms": finishedAt.Sub(run.StartedAt).Milliseconds(),
		"details":     details,
		"error":       errText,
	}).Error; err != nil {
		config.LogError(r.logger, "violationsync", "Recorder.Finish", "update cron run", run.ID, err)
	}
}

// Run executes fn between Start and Finish and caches the statistics.
func (r *Recorder) Run(ctx context.Context, job, triggeredBy string, fn func(ctx context.Context) (*SyncRunStatistics, error)) (*SyncRunStatistics, error) {
	ctx = utils.SetJobNameInContext(ctx, job)
	ctx = utils.SetTriggeredByInContext(ctx, triggeredBy)

	run := r.Start(ctx, job, triggeredBy)
	stats, err := fn(ctx)
	r.Finish(ctx, run, stats, err)

	if stats != nil && r.cache != nil {
		if cerr := r.cache.Put(ctx, job, stats); cerr != nil {
			config.LogError(r.logger, "violationsync", "Recorder.Run", "cache run statistics", job, cerr)
		}
	}
	return stats, err
}

// LastRun returns the most recent statistics of job, from the cache when
// possible and otherwise from the latest finished audit row.
func (r *Recorder) LastRun(ctx context.Context, job string) (*SyncRunStatistics, error) {
	if r.cache != nil {
		if stats, ok, err := r.cache.Get(ctx, job); err == nil && ok {
			return stats, nil
		}
	}

	var run models.CronRun
	err := r.db.WithContext(ctx).
		Where("job_name = ? AND status <> ?", job, models.CronRunStatusRunning).
		Order("started_at DESC").
		Order("id DESC").
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if run.Details == "" {
		return nil, utils.ErrorRecordNotFound
	}
	var stats SyncRunStatistics
	if err := utils.UnmarshalFromJSON([]byte(run.Details), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
