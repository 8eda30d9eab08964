package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadSyncSettingsDefaults(t *testing.T) {
	for _, key := range []string{"DOL_API_BASE_URL", "SYNC_REGIONS", "ACTIVITY_NR_BATCH_SIZE", "MAX_RECORDS_PER_REQUEST", "SYNC_DEFAULT_DELAY_SECONDS", "BULK_SINCE_FIELD"} {
		t.Setenv(key, "")
	}

	s := LoadSyncSettings()
	assert.Equal(t, defaultDOLBaseURL, s.DOLBaseURL)
	assert.Equal(t, SoutheastStates, s.Regions)
	assert.Equal(t, 100, s.ChunkSize)
	assert.Equal(t, 200, s.PageSize)
	assert.Equal(t, 1500*time.Millisecond, s.DefaultDelay)
	assert.Equal(t, "load_dt", s.BulkSinceField)
}

func TestLoadSyncSettingsOverrides(t *testing.T) {
	t.Setenv("DOL_API_BASE_URL", "http://localhost:9999/osha/")
	t.Setenv("SYNC_REGIONS", " ga, fl ,,")
	t.Setenv("ACTIVITY_NR_BATCH_SIZE", "10")
	t.Setenv("SYNC_DEFAULT_DELAY_SECONDS", "0")

	s := LoadSyncSettings()
	assert.Equal(t, "http://localhost:9999/osha", s.DOLBaseURL)
	assert.Equal(t, []string{"GA", "FL"}, s.Regions)
	assert.Equal(t, 10, s.ChunkSize)
	assert.Equal(t, time.Duration(0), s.DefaultDelay)
}

type recordingPool struct {
	maxOpen, maxIdle int
	life, idle       time.Duration
}

func (r *recordingPool) SetMaxOpenConns(n int)              { r.maxOpen = n }
func (r *recordingPool) SetMaxIdleConns(n int)              { r.maxIdle = n }
func (r *recordingPool) SetConnMaxLifetime(d time.Duration) { r.life = d }
func (r *recordingPool) SetConnMaxIdleTime(d time.Duration) { r.idle = d }

func TestPoolSettingsDefaultToTinyCeiling(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "")
	t.Setenv("DB_MAX_IDLE_CONNS", "")

	pool := &recordingPool{}
	ApplyPoolSettings(pool, LoadPoolSettings())
	assert.Equal(t, 2, pool.maxOpen)
	assert.Equal(t, 1, pool.maxIdle)
	assert.Equal(t, 300*time.Second, pool.life)
}

func TestEnvBoolDefault(t *testing.T) {
	t.Setenv("SOME_FLAG", "yes")
	assert.True(t, envBoolDefault("SOME_FLAG", false))
	t.Setenv("SOME_FLAG", "off")
	assert.False(t, envBoolDefault("SOME_FLAG", true))
	t.Setenv("SOME_FLAG", "maybe")
	assert.True(t, envBoolDefault("SOME_FLAG", true))
}

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN("osha", "pw", "10.0.0.5", "3306", "osha_tracker")
	assert.True(t, strings.HasPrefix(dsn, "osha:pw@tcp(10.0.0.5:3306)/osha_tracker?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "clientFoundRows=true")

	dsn = BuildDSN("osha", "pw", "/cloudsql/proj:us-east1:db", "", "osha_tracker")
	assert.True(t, strings.HasPrefix(dsn, "osha:pw@unix(/cloudsql/proj:us-east1:db)/osha_tracker?"), dsn)
}
