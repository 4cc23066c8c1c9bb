package transitbundle

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

var ErrValidationFailed = errors.New("validation failed")

type Severity string

const (
	SeverityError Severity = "ERROR"
	SeverityWarn  Severity = "WARN"
)

// IssueCode identifies one class of validation finding. Table specs may
// declare more specific codes (e.g. ROUTE_ID_NOT_UNIQUE) that replace the
// generic ones below.
type IssueCode string

const (
	CodeTablesNotFound        IssueCode = "NORMALIZED_TABLES_NOT_FOUND"
	CodeTableMissing          IssueCode = "TABLE_MISSING"
	CodeSchemaMissingColumns  IssueCode = "SCHEMA_MISSING_COLUMNS"
	CodeKeyColumnNull         IssueCode = "KEY_COLUMN_NULL"
	CodeUniquenessViolation   IssueCode = "UNIQUENESS_VIOLATION"
	CodeFKMissing             IssueCode = "FK_MISSING"
	CodePatternSeqBase        IssueCode = "PATTERN_SEQ_BASE_MISMATCH"
	CodePatternSeqGapsOrDupes IssueCode = "PATTERN_SEQ_GAPS_OR_DUPES"
	CodeUnresolvedNonempty    IssueCode = "UNRESOLVED_NONEMPTY"
	CodePatternTooShort       IssueCode = "PATTERN_TOO_SHORT"
	CodePatternTooLong        IssueCode = "PATTERN_TOO_LONG"
	CodeRouteMissingFares     IssueCode = "ROUTE_MISSING_FARES"
	CodePlaceOutsideRegion    IssueCode = "PLACE_OUTSIDE_REGION"
)

// Issue is one validation finding. Issues never mutate tables; everything
// downstream of the engine sees them only through the pass/fail gate.
type Issue struct {
	Severity   Severity            `json:"severity"`
	Code       IssueCode           `json:"code"`
	Table      string              `json:"table"`
	Message    string              `json:"message"`
	Count      int                 `json:"count"`
	Columns    []string            `json:"columns,omitempty"`
	Samples    []map[string]string `json:"samples,omitempty"`
	SourceHint string              `json:"source_hint,omitempty"`
}

type ReportSummary struct {
	Errors            int `json:"errors"`
	Warnings          int `json:"warnings"`
	TablesChecked     int `json:"tables_checked"`
	UnresolvedChecked int `json:"unresolved_checked"`
	MappingsChecked   int `json:"mappings_checked"`
}

type ReportSpec struct {
	SpecID      string `json:"spec_id"`
	SpecVersion string `json:"spec_version"`
}

const reportVersion = "1.0"

// Report is the JSON document consumed by the publish step and,
// optionally, by the committer's validation gate.
type Report struct {
	ReportVersion string         `json:"report_version"`
	SourceID      string         `json:"source_id"`
	Version       string         `json:"version"`
	RulesVersion  string         `json:"rules_version"`
	GeneratedAt   string         `json:"generated_at_utc"`
	Spec          ReportSpec     `json:"spec"`
	Summary       ReportSummary  `json:"summary"`
	Issues        []Issue        `json:"issues"`
	Config        ValidateConfig `json:"config"`
}

// Failed reports whether the exit policy considers this report a failure.
func (r *Report) Failed(failOnWarn bool) bool {
	return r.Summary.Errors > 0 || (failOnWarn && r.Summary.Warnings > 0)
}

// WriteReport persists a report as indented JSON via a temp file and rename,
// so a crashed run never leaves a truncated report behind.
func WriteReport(path string, report *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadReport loads a previously written validation report.
func ReadReport(path string) (*Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
