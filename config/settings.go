package config

import (
	"os"
	"strings"
	"time"
)

// SoutheastStates is the default sync region.
var SoutheastStates = []string{"AL", "AR", "FL", "GA", "KY", "LA", "MS", "NC", "SC", "TN", "VA", "WV"}

const (
	defaultDOLBaseURL = "https://apiprod.dol.gov/v4/get/OSHA"
)

// SyncSettings holds everything the violation sync engine reads from the environment.
type SyncSettings struct {
	DOLBaseURL         string
	DOLAPIKey          string
	DOLRateLimitPerMin int
	DOLHTTPTimeout     time.Duration
	BreakerMaxFailures int

	Regions []string

	// ChunkSize is the number of activity numbers per "in" filter.
	ChunkSize int
	// PageSize is the API page size (limit parameter).
	PageSize int
	// ReconcileBatchParents is the number of parents reconciled per transaction.
	ReconcileBatchParents int

	DefaultDelay   time.Duration
	BulkSinceField string

	CronSecret          string
	ViolationEventTopic string
}

func LoadSyncSettings() SyncSettings {
	s := SyncSettings{
		DOLBaseURL:            strings.TrimRight(strings.TrimSpace(os.Getenv("DOL_API_BASE_URL")), "/"),
		DOLAPIKey:             strings.TrimSpace(os.Getenv("DOL_API_KEY")),
		DOLRateLimitPerMin:    intFromEnv("DOL_RATE_LIMIT_PER_MIN", 40),
		DOLHTTPTimeout:        time.Duration(intFromEnv("DOL_HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		BreakerMaxFailures:    intFromEnv("DOL_BREAKER_MAX_FAILURES", 3),
		Regions:               splitRegions(os.Getenv("SYNC_REGIONS")),
		ChunkSize:             intFromEnv("ACTIVITY_NR_BATCH_SIZE", 100),
		PageSize:              intFromEnv("MAX_RECORDS_PER_REQUEST", 200),
		ReconcileBatchParents: intFromEnv("RECONCILE_BATCH_PARENTS", 25),
		DefaultDelay:          time.Duration(floatFromEnv("SYNC_DEFAULT_DELAY_SECONDS", 1.5) * float64(time.Second)),
		BulkSinceField:        strings.TrimSpace(os.Getenv("BULK_SINCE_FIELD")),
		CronSecret:            os.Getenv("CRON_SECRET"),
		ViolationEventTopic:   strings.TrimSpace(os.Getenv("VIOLATION_EVENTS_TOPIC")),
	}
	if s.DOLBaseURL == "" {
		s.DOLBaseURL = defaultDOLBaseURL
	}
	if len(s.Regions) == 0 {
		s.Regions = append([]string(nil), SoutheastStates...)
	}
	if s.ChunkSize <= 0 {
		s.ChunkSize = 100
	}
	if s.PageSize <= 0 {
		s.PageSize = 200
	}
	if s.ReconcileBatchParents <= 0 {
		s.ReconcileBatchParents = 25
	}
	if s.BulkSinceField == "" {
		s.BulkSinceField = "load_dt"
	}
	if s.ViolationEventTopic == "" {
		s.ViolationEventTopic = "osha-new-violations"
	}
	return s
}

func splitRegions(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
