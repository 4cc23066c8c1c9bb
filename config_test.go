package transitbundle

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Validate.FailOnWarn)
	assert.Equal(t, 100, cfg.Validate.SampleSize)
	assert.EqualValues(t, 1, cfg.Validate.SeqBase)
	assert.Equal(t, []string{"fare_orphans"}, cfg.Validate.AllowUnresolved)

	assert.Equal(t, 50000, cfg.Commit.BatchRows)
	assert.Equal(t, 200000, cfg.Commit.CacheSizeKB)
	assert.Equal(t, "WAL", cfg.Commit.ImportJournalMode)
	assert.Equal(t, "DELETE", cfg.Commit.FinalJournalMode)
	assert.Equal(t, "routes_fares_xml", cfg.Commit.RoutesFaresSourceID)
	assert.True(t, cfg.Commit.EnforceSingleSourcePerTable)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := testTempdir(t)
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
validate:
  sample_size: 10
  fail_on_warn: false
commit:
  batch_rows: 100
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Validate.SampleSize)
	assert.False(t, cfg.Validate.FailOnWarn)
	assert.Equal(t, 100, cfg.Commit.BatchRows)
	assert.Equal(t, 200000, cfg.Commit.CacheSizeKB, "untouched keys keep their defaults")
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	dir := testTempdir(t)
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("frobnicate: true\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	dir := testTempdir(t)
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
commit:
  import_journal_mode: TRUNCATE
`), 0o644))

	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "invalid config")
}
