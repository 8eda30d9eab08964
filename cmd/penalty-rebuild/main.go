package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tsgsafety/osha_tracker/config"
	"github.com/tsgsafety/osha_tracker/models"
	"github.com/tsgsafety/osha_tracker/violationsync"
)

func main() {
	activityNr := flag.String("activity-nr", "", "Optional: rebuild only one inspection. If empty, rebuilds every drifted inspection.")
	limit := flag.Int("limit", 1000, "Maximum drifted inspections to repair in one run.")
	dryRun := flag.Bool("dry-run", false, "Only report drift, do not write.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	var targets []violationsync.AggregateTarget
	if nr := strings.TrimSpace(*activityNr); nr != "" {
		targets = append(targets, violationsync.AggregateTarget{ActivityNr: nr})
	} else {
		drift, err := models.FindPenaltyDrift(ctx, db, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to find penalty drift: %v\n", err)
			os.Exit(1)
		}
		for _, d := range drift {
			fmt.Printf("drift activity_nr=%s current=%s/%s initial=%s/%s\n",
				d.ActivityNr, d.StoredCurrent.StringFixed(2), d.ActualCurrent.StringFixed(2),
				d.StoredInitial.StringFixed(2), d.ActualInitial.StringFixed(2))
			targets = append(targets, violationsync.AggregateTarget{ActivityNr: d.ActivityNr})
		}
	}

	if len(targets) == 0 {
		fmt.Println("No penalty drift found")
		return
	}
	if *dryRun {
		fmt.Printf("Dry run: %d inspections would be rebuilt\n", len(targets))
		return
	}

	// Stamps stay empty: a rebuild is not a violation check.
	failures := violationsync.NewAggregator(db, nil).RecomputeAll(ctx, targets)
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "rebuild %s failed: %v\n", f.ActivityNr, f.Err)
	}
	fmt.Printf("Rebuild complete: %d rebuilt, %d failed\n", len(targets)-len(failures), len(failures))
	if len(failures) > 0 {
		os.Exit(1)
	}
}
