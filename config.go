package transitbundle

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ValidateConfig tunes the validation engine. Zero value is not usable;
// start from DefaultValidateConfig.
type ValidateConfig struct {
	FailOnWarn           bool `yaml:"fail_on_warn" json:"fail_on_warn"`
	SampleSize           int  `yaml:"sample_size" json:"sample_size" validate:"gt=0"`
	HardStopOnMissingCore bool `yaml:"hard_stop_on_missing_core" json:"hard_stop_on_missing_core"`
	SeqBase              int64 `yaml:"seq_base" json:"seq_base"`
	RequireContiguousSeq bool  `yaml:"require_contiguous_seq" json:"require_contiguous_seq"`
	MinPatternStopsWarn  int   `yaml:"min_pattern_stops_warn" json:"min_pattern_stops_warn" validate:"gte=0"`
	MaxPatternStopsWarn  int   `yaml:"max_pattern_stops_warn" json:"max_pattern_stops_warn" validate:"gte=0"`

	// AllowUnresolved lists unresolved tables that may be non-empty without
	// failing the run; they are reported as warnings instead.
	AllowUnresolved []string `yaml:"allow_unresolved" json:"allow_unresolved,omitempty"`

	// ServiceAreaPath points at a GeoJSON polygon of the service area.
	// When set, places outside it are reported as warnings.
	ServiceAreaPath string `yaml:"service_area_path" json:"service_area_path,omitempty"`
}

func DefaultValidateConfig() ValidateConfig {
	return ValidateConfig{
		FailOnWarn:            true,
		SampleSize:            100,
		HardStopOnMissingCore: true,
		SeqBase:               1,
		RequireContiguousSeq:  true,
		MinPatternStopsWarn:   2,
		MaxPatternStopsWarn:   200,
		AllowUnresolved:       []string{"fare_orphans"},
	}
}

func (c *ValidateConfig) unresolvedAllowed(table string) bool {
	for _, t := range c.AllowUnresolved {
		if t == table {
			return true
		}
	}
	return false
}

// CommitConfig tunes the bundle build. Defaults match the production
// pipeline; most knobs exist for tests and one-off rebuilds.
type CommitConfig struct {
	BatchRows   int `yaml:"batch_rows" json:"batch_rows" validate:"gt=0"`
	CacheSizeKB int `yaml:"cache_size_kb" json:"cache_size_kb" validate:"gt=0"`

	ImportJournalMode string `yaml:"import_journal_mode" json:"import_journal_mode" validate:"oneof=WAL DELETE MEMORY OFF"`
	ImportSynchronous string `yaml:"import_synchronous" json:"import_synchronous" validate:"oneof=OFF NORMAL FULL"`
	FinalJournalMode  string `yaml:"final_journal_mode" json:"final_journal_mode" validate:"oneof=WAL DELETE"`
	FinalSynchronous  string `yaml:"final_synchronous" json:"final_synchronous" validate:"oneof=NORMAL FULL"`

	RunAnalyze  bool `yaml:"run_analyze" json:"run_analyze"`
	RunOptimize bool `yaml:"run_optimize" json:"run_optimize"`
	RunVacuum   bool `yaml:"run_vacuum" json:"run_vacuum"`

	EnforceSingleSourcePerTable bool `yaml:"enforce_single_source_per_table" json:"enforce_single_source_per_table"`
	CreateHeadwayDebugTables    bool `yaml:"create_headway_debug_tables" json:"create_headway_debug_tables"`

	// RoutesFaresSourceID selects which dataset's mapping tables feed the
	// headway resolver's route lookup.
	RoutesFaresSourceID string `yaml:"routes_fares_source_id" json:"routes_fares_source_id"`
}

func DefaultCommitConfig() CommitConfig {
	return CommitConfig{
		BatchRows:                   50000,
		CacheSizeKB:                 200000,
		ImportJournalMode:           "WAL",
		ImportSynchronous:           "NORMAL",
		FinalJournalMode:            "DELETE",
		FinalSynchronous:            "FULL",
		RunAnalyze:                  true,
		RunOptimize:                 true,
		RunVacuum:                   true,
		EnforceSingleSourcePerTable: true,
		CreateHeadwayDebugTables:    true,
		RoutesFaresSourceID:         "routes_fares_xml",
	}
}

type Config struct {
	Validate ValidateConfig `yaml:"validate" json:"validate"`
	Commit   CommitConfig   `yaml:"commit" json:"commit"`
}

func DefaultConfig() Config {
	return Config{
		Validate: DefaultValidateConfig(),
		Commit:   DefaultCommitConfig(),
	}
}

// LoadConfig reads a YAML config file over the defaults, so a file only
// needs to name the keys it changes.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
