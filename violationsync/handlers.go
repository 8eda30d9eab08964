package violationsync

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tsgsafety/osha_tracker/config"
	"github.com/tsgsafety/osha_tracker/models"
	"github.com/tsgsafety/osha_tracker/utils"
)

type manualSyncQuery struct {
	MaxInspections       int `form:"max_inspections,default=3" binding:"min=1,max=500"`
	DaysBack             int `form:"days_back,default=180" binding:"min=30,max=365"`
	MinDaysBetweenChecks int `form:"min_days_between_checks,default=7" binding:"min=1,max=90"`
	MaxRequests          int `form:"max_requests,default=10" binding:"min=1,max=50"`
}

type cronSyncQuery struct {
	MaxInspections       int `form:"max_inspections,default=50" binding:"min=1,max=500"`
	DaysBack             int `form:"days_back,default=180" binding:"min=30,max=365"`
	MinDaysBetweenChecks int `form:"min_days_between_checks,default=7" binding:"min=1,max=90"`
	MaxRequests          int `form:"max_requests,default=8" binding:"min=1,max=50"`
}

type bulkSyncQuery struct {
	DaysBack    int `form:"days_back,default=30" binding:"min=1,max=365"`
	Limit       int `form:"limit,default=500" binding:"min=1,max=5000"`
	MaxRequests int `form:"max_requests,default=8" binding:"min=1,max=50"`
}

type driftQuery struct {
	Limit int `form:"limit,default=100" binding:"min=1,max=1000"`
}

// StatusResponse lists the last statistics per job; missing jobs never ran.
type StatusResponse struct {
	Jobs map[string]*SyncRunStatistics `json:"jobs"`
}

// respond writes the statistics of a finished run. Degraded runs still
// answer 200; only a run that could not start or select is a 5xx.
func respond(c *gin.Context, stats *SyncRunStatistics, err error) {
	if err != nil {
		body := gin.H{"success": false, "error": err.Error()}
		if stats != nil {
			body["stats"] = stats
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": !stats.Failed(), "stats": stats})
}

// TriggerSyncHandler runs a targeted sync from the dashboard.
func (s *Service) TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q manualSyncQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		stats, err := s.RunTargeted(c.Request.Context(), models.CronTriggeredManual, TargetedParams{
			DaysBack:       q.DaysBack,
			MinRecheckDays: q.MinDaysBetweenChecks,
			Limit:          q.MaxInspections,
			MaxRequests:    q.MaxRequests,
			Delay:          s.Settings.DefaultDelay,
		})
		respond(c, stats, err)
	}
}

// CronSyncHandler runs the scheduled targeted sync.
func (s *Service) CronSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q cronSyncQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		stats, err := s.RunTargeted(c.Request.Context(), models.CronTriggeredCron, TargetedParams{
			DaysBack:       q.DaysBack,
			MinRecheckDays: q.MinDaysBetweenChecks,
			Limit:          q.MaxInspections,
			MaxRequests:    q.MaxRequests,
			Delay:          s.Settings.DefaultDelay,
		})
		respond(c, stats, err)
	}
}

// CronBulkSyncHandler runs the scheduled bulk sweep.
func (s *Service) CronBulkSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.BulkSyncEnabled() {
			c.JSON(http.StatusNotFound, gin.H{"error": "bulk violation sync is disabled"})
			return
		}
		var q bulkSyncQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		stats, err := s.RunBulk(c.Request.Context(), models.CronTriggeredCron, BulkParams{
			DaysBack:    q.DaysBack,
			Limit:       q.Limit,
			MaxRequests: q.MaxRequests,
		})
		respond(c, stats, err)
	}
}

// InspectionSyncHandler re-checks one inspection on demand.
func (s *Service) InspectionSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		activityNr := strings.TrimSpace(c.Param("activity_nr"))
		if activityNr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "activity_nr is required"})
			return
		}
		stats, err := s.RunInspection(c.Request.Context(), models.CronTriggeredManual, activityNr)
		if errors.Is(err, ErrInspectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "inspection " + activityNr + " not found"})
			return
		}
		respond(c, stats, err)
	}
}

// StatusHandler returns the last statistics of every job.
func (s *Service) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := StatusResponse{Jobs: map[string]*SyncRunStatistics{}}
		for _, job := range []string{JobTargeted, JobBulk, JobInspection} {
			stats, err := s.Recorder.LastRun(c.Request.Context(), job)
			if errors.Is(err, utils.ErrorRecordNotFound) {
				continue
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			resp.Jobs[job] = stats
		}
		c.JSON(http.StatusOK, resp)
	}
}

// PenaltyDriftHandler lists inspections whose totals disagree with their violations.
func (s *Service) PenaltyDriftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q driftQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		drift, err := models.FindPenaltyDrift(c.Request.Context(), s.DB, q.Limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"count":      len(drift),
			"drift":      drift,
			"checked_at": time.Now().UTC(),
		})
	}
}
