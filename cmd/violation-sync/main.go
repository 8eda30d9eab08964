package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/tsgsafety/osha_tracker/config"
	"github.com/tsgsafety/osha_tracker/models"
	"github.com/tsgsafety/osha_tracker/utils"
	"github.com/tsgsafety/osha_tracker/violationsync"
)

func main() {
	mode := flag.String("mode", violationsync.ModeTargeted, "Sync strategy: targeted, bulk or inspection.")
	activityNr := flag.String("activity-nr", "", "Inspection activity number (mode=inspection).")
	daysBack := flag.Int("days-back", 0, "Window of inspection open dates, in days. 0 uses the cron default.")
	minRecheck := flag.Int("min-recheck-days", 0, "Days before a checked inspection is due again (targeted).")
	limit := flag.Int("limit", 0, "Maximum inspections selected.")
	maxRequests := flag.Int("max-requests", 0, "Hard ceiling on DOL API requests for this run.")
	delay := flag.Float64("delay", 0, "Seconds between API requests (targeted). 0 uses SYNC_DEFAULT_DELAY_SECONDS.")
	publish := flag.Bool("publish", false, "Publish the request to Pub/Sub instead of running it here.")
	topic := flag.String("topic", "violation-sync", "Pub/Sub topic used with -publish.")
	flag.Parse()

	req := violationsync.SyncRequest{
		Mode:           *mode,
		ActivityNr:     *activityNr,
		DaysBack:       *daysBack,
		MinRecheckDays: *minRecheck,
		Limit:          *limit,
		MaxRequests:    *maxRequests,
		DelaySeconds:   *delay,
	}

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())

	if *publish {
		id, err := violationsync.PublishSyncRequest(ctx, *topic, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "publish sync request: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Published sync request (message_id=%s)\n", id)
		return
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	if !config.SkipMigrations() {
		models.MigrateTable()
	}
	config.ConnectRedisWithRetry(ctx, 1)

	svc := violationsync.NewService(db, config.LoadSyncSettings(), violationsync.NewStatusCache(config.GetRedisDB()))
	stats, err := svc.Dispatch(ctx, models.CronTriggeredCLI, req)
	if stats != nil {
		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(out))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "violation sync failed: %v\n", err)
		os.Exit(1)
	}
	if stats.Failed() {
		os.Exit(2)
	}
}
