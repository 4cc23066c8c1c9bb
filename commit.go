package transitbundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

func sqlitexNoop(stmt *sqlite.Stmt) error { return nil }

// CommitError wraps a failure with the build step it happened in, so a
// failed nightly run reports "load pattern_stops" rather than a bare
// SQLite error string.
type CommitError struct {
	Step string
	Err  error
}

func (e *CommitError) Error() string { return e.Step + ": " + e.Err.Error() }
func (e *CommitError) Unwrap() error { return e.Err }

func commitErrf(step string, format string, args ...any) error {
	return &CommitError{Step: step, Err: fmt.Errorf(format, args...)}
}

type CommitOpts struct {
	Config        CommitConfig
	BundleVersion string
	Notes         string

	// RequireValid lists validation report paths that must all have zero
	// errors before the build is allowed to start.
	RequireValid []string

	// Now overrides the build timestamp; zero means wall clock.
	Now time.Time
}

// BuildMetadata is the sidecar document written next to every bundle.
type BuildMetadata struct {
	BundleVersion  string            `json:"bundle_version"`
	SchemaVersion  int               `json:"schema_version"`
	GeneratedAt    string            `json:"generated_at_utc"`
	BundleSHA256   string            `json:"bundle_sha256"`
	SchemaSHA256   string            `json:"schema_sha256"`
	SourceVersions map[string]string `json:"source_versions"`
	TableRows      map[string]int64  `json:"table_rows"`
	PhaseSeconds   map[string]float64 `json:"phase_seconds"`
	HeadwayStats   ResolveStats      `json:"headway_stats"`
	ReportSHA256s  map[string]string `json:"validation_reports,omitempty"`
}

// inputColumnAliases maps accepted upstream column spellings to the
// canonical column they load into.
var inputColumnAliases = map[string]string{
	"stop_key": "place_key",
}

var importPragmas = []string{
	"journal_mode = WAL",
	"synchronous = NORMAL",
	"temp_store = MEMORY",
	"busy_timeout = 5000",
	"foreign_keys = OFF",
}

var finalPragmas = []string{
	"journal_mode = DELETE",
	"synchronous = FULL",
	"foreign_keys = ON",
}

// Commit builds a canonical bundle from one or more datasets.
//
// The build writes to a temp path beside the output and only renames it
// into place after every integrity check passes, so a crashed or failed
// build never clobbers the previous bundle. Derived tables
// (pattern_headways, meta) are always rebuilt from the inputs; supplying
// them as input is an error, as is the same table arriving from two
// datasets.
func Commit(datasets []*Dataset, outPath string, opts *CommitOpts) (*BuildMetadata, error) {
	if outPath == "" {
		panic("Missing outPath")
	}
	if opts == nil {
		opts = &CommitOpts{}
	}
	cfg := opts.Config
	if cfg.BatchRows == 0 {
		cfg = DefaultCommitConfig()
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	generatedAt := now.UTC().Format(time.RFC3339)

	reportHashes, err := checkReports(opts.RequireValid)
	if err != nil {
		return nil, err
	}

	tables, sourceVersions, err := mergeDatasets(datasets, cfg)
	if err != nil {
		return nil, err
	}

	slog.Info(fmt.Sprintf("Committing %d table(s) from %d dataset(s) to %s",
		len(tables), len(datasets), outPath))

	tmpPath := outPath + ".tmp"
	removeBundleFiles(tmpPath)
	defer removeBundleFiles(tmpPath)

	db, err := sqlite.OpenConn(tmpPath, 0)
	if err != nil {
		return nil, &CommitError{Step: "open", Err: err}
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	for _, pragma := range importPragmas {
		if err := sqlitex.ExecTransient(db, "PRAGMA "+pragma, sqlitexNoop); err != nil {
			return nil, &CommitError{Step: "pragma " + pragma, Err: err}
		}
	}
	if err := sqlitex.ExecTransient(db,
		fmt.Sprintf("PRAGMA cache_size = -%d", cfg.CacheSizeKB), sqlitexNoop); err != nil {
		return nil, &CommitError{Step: "pragma cache_size", Err: err}
	}

	if err := sqlitex.ExecScript(db, canonicalDDL()); err != nil {
		return nil, &CommitError{Step: "create schema", Err: err}
	}
	if err := sqlitex.ExecTransient(db,
		fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion), sqlitexNoop); err != nil {
		return nil, &CommitError{Step: "pragma user_version", Err: err}
	}

	phaseSeconds := make(map[string]float64)
	phaseStart := time.Now()
	phase := func(name string) {
		phaseSeconds[name] = time.Since(phaseStart).Seconds()
		phaseStart = time.Now()
	}

	tableRows := make(map[string]int64)
	if err := sqlitex.Exec(db, "BEGIN", sqlitexNoop); err != nil {
		return nil, &CommitError{Step: "begin", Err: err}
	}

	var tableNames []string
	for name := range tables {
		tableNames = append(tableNames, name)
	}
	sort.Strings(tableNames)
	for _, name := range tableNames {
		n, err := loadTable(db, name, tables[name], cfg.BatchRows)
		if err != nil {
			return nil, err
		}
		tableRows[name] = n
	}
	phase("load")

	headways, err := resolveStep(db, datasets, tables, cfg)
	if err != nil {
		return nil, err
	}
	tableRows["pattern_headways"] = int64(headways.Stats.Inserted)
	phase("resolve")

	sourceVersionsJSON, err := json.Marshal(sourceVersions)
	if err != nil {
		return nil, &CommitError{Step: "encode source versions", Err: err}
	}
	err = sqlitex.Exec(db, `INSERT INTO meta
		(meta_id, schema_version, bundle_version, generated_at, source_versions_json, notes)
		VALUES (1, ?, ?, ?, ?, ?)`, sqlitexNoop,
		SchemaVersion, opts.BundleVersion, generatedAt,
		string(sourceVersionsJSON), opts.Notes)
	if err != nil {
		return nil, &CommitError{Step: "write meta", Err: err}
	}
	tableRows["meta"] = 1

	if err := sqlitex.Exec(db, "COMMIT", sqlitexNoop); err != nil {
		return nil, &CommitError{Step: "commit", Err: err}
	}

	if err := maintain(db, cfg); err != nil {
		return nil, err
	}
	phase("maintain")
	if err := runChecks(db); err != nil {
		return nil, err
	}
	phase("check")

	err = db.Close()
	db = nil
	if err != nil {
		return nil, &CommitError{Step: "close", Err: err}
	}

	_ = os.Remove(tmpPath + "-wal")
	_ = os.Remove(tmpPath + "-shm")
	if err := os.Rename(tmpPath, outPath); err != nil {
		return nil, &CommitError{Step: "rename", Err: err}
	}

	bundleHash, err := sha256File(outPath)
	if err != nil {
		return nil, &CommitError{Step: "hash bundle", Err: err}
	}

	meta := &BuildMetadata{
		BundleVersion:  opts.BundleVersion,
		SchemaVersion:  SchemaVersion,
		GeneratedAt:    generatedAt,
		BundleSHA256:   bundleHash,
		SchemaSHA256:   canonicalDDLSHA256(),
		SourceVersions: sourceVersions,
		TableRows:      tableRows,
		PhaseSeconds:   phaseSeconds,
		HeadwayStats:   headways.Stats,
		ReportSHA256s:  reportHashes,
	}
	if err := writeBuildMetadata(outPath, meta); err != nil {
		return nil, err
	}

	slog.Info(fmt.Sprintf("Wrote %s (%s)", outPath, bundleHash[:12]))
	return meta, nil
}

func checkReports(paths []string) (map[string]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	hashes := make(map[string]string, len(paths))
	for _, path := range paths {
		report, err := ReadReport(path)
		if err != nil {
			return nil, &CommitError{Step: "read report " + path, Err: err}
		}
		if report.Summary.Errors > 0 {
			return nil, &CommitError{
				Step: "gate " + path,
				Err: fmt.Errorf("%w: %s has %d error(s)",
					ErrValidationFailed, report.SourceID, report.Summary.Errors),
			}
		}
		hash, err := sha256File(path)
		if err != nil {
			return nil, &CommitError{Step: "hash report " + path, Err: err}
		}
		hashes[filepath.Base(path)] = hash
	}
	return hashes, nil
}

func mergeDatasets(datasets []*Dataset, cfg CommitConfig) (map[string]*Table, map[string]string, error) {
	if len(datasets) == 0 {
		return nil, nil, commitErrf("merge", "no datasets")
	}

	tables := make(map[string]*Table)
	tableSource := make(map[string]string)
	sourceVersions := make(map[string]string)

	for _, ds := range datasets {
		sourceVersions[ds.SourceID()] = ds.Version()
		for name, t := range ds.Tables {
			schema, known := bundleSchema[name]
			if !known {
				return nil, nil, commitErrf("merge", "dataset %s supplies unknown table %s",
					ds.SourceID(), name)
			}
			if derivedTables[name] {
				return nil, nil, commitErrf("merge", "dataset %s supplies derived table %s",
					ds.SourceID(), name)
			}
			if prev, dup := tableSource[name]; dup && cfg.EnforceSingleSourcePerTable {
				return nil, nil, commitErrf("merge", "table %s supplied by both %s and %s",
					name, prev, ds.SourceID())
			}
			if err := checkTableColumns(name, t, schema); err != nil {
				return nil, nil, err
			}
			tables[name] = t
			tableSource[name] = ds.SourceID()
		}
	}
	return tables, sourceVersions, nil
}

func checkTableColumns(name string, t *Table, schema tableSchema) error {
	for _, colName := range t.Columns {
		canonical := colName
		if alias, ok := inputColumnAliases[colName]; ok {
			canonical = alias
		}
		if _, ok := schema.column(canonical); !ok {
			return commitErrf("merge", "table %s has unknown column %s", name, colName)
		}
	}
	for _, c := range schema.Columns {
		if !c.NotNull {
			continue
		}
		if inputColumnIndex(t, c.Name) < 0 {
			return commitErrf("merge", "table %s is missing required column %s", name, c.Name)
		}
	}
	return nil
}

// inputColumnIndex finds a canonical column in an input table, accepting
// registered aliases.
func inputColumnIndex(t *Table, canonical string) int {
	if i := t.Col(canonical); i >= 0 {
		return i
	}
	for alias, target := range inputColumnAliases {
		if target == canonical {
			if i := t.Col(alias); i >= 0 {
				return i
			}
		}
	}
	return -1
}

func loadTable(db *sqlite.Conn, name string, t *Table, batchRows int) (int64, error) {
	schema := bundleSchema[name]

	// Bind only the canonical columns the input actually carries; the rest
	// stay NULL.
	var cols []columnSchema
	var srcIdx []int
	for _, c := range schema.Columns {
		if i := inputColumnIndex(t, c.Name); i >= 0 {
			cols = append(cols, c)
			srcIdx = append(srcIdx, i)
		}
	}

	rowOrder := sortedRowOrder(t, schema)

	var nameFragments, argFragments []string
	for i, c := range cols {
		nameFragments = append(nameFragments, c.Name)
		argFragments = append(argFragments, fmt.Sprintf("?%d", i+1))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		name, strings.Join(nameFragments, ", "), strings.Join(argFragments, ", "))
	stmt, err := db.Prepare(query)
	if err != nil {
		return 0, &CommitError{Step: "prepare " + name, Err: err}
	}

	count := int64(0)
	for _, row := range rowOrder {
		if err := stmt.Reset(); err != nil {
			return 0, &CommitError{Step: "load " + name, Err: err}
		}
		if err := stmt.ClearBindings(); err != nil {
			return 0, &CommitError{Step: "load " + name, Err: err}
		}
		for i, c := range cols {
			if err := bindCell(stmt, i+1, t.Rows[row][srcIdx[i]], c); err != nil {
				return 0, commitErrf("load "+name, "row %d column %s: %v", row, c.Name, err)
			}
		}
		for {
			rowReturned, err := stmt.Step()
			if err != nil {
				return 0, &CommitError{Step: "load " + name, Err: err}
			}
			if !rowReturned {
				break
			}
		}

		count++
		if count%int64(batchRows) == 0 {
			if err := sqlitex.ExecTransient(db, "COMMIT", sqlitexNoop); err != nil {
				return 0, &CommitError{Step: "load " + name, Err: err}
			}
			if err := sqlitex.ExecTransient(db, "BEGIN", sqlitexNoop); err != nil {
				return 0, &CommitError{Step: "load " + name, Err: err}
			}
		}
	}

	slog.Info(fmt.Sprintf("Loaded %s: %d row(s)", name, count))
	return count, nil
}

// sortedRowOrder returns row indices ordered by the table's primary key
// (all columns when there is none), comparing numerically for numeric
// columns. Bundles with identical inputs come out byte-identical.
func sortedRowOrder(t *Table, schema tableSchema) []int {
	sortCols := schema.PrimaryKey
	if len(sortCols) == 0 {
		sortCols = schema.columnNames()
	}

	type sortCol struct {
		idx     int
		numeric bool
	}
	var cols []sortCol
	for _, name := range sortCols {
		i := inputColumnIndex(t, name)
		if i < 0 {
			continue
		}
		c, _ := schema.column(name)
		cols = append(cols, sortCol{idx: i, numeric: c.Type != colText})
	}

	order := make([]int, t.NumRows())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := t.Rows[order[a]], t.Rows[order[b]]
		for _, c := range cols {
			va, vb := ra[c.idx], rb[c.idx]
			if va == vb {
				continue
			}
			if c.numeric {
				fa, aok, _ := cellFloat64(va)
				fb, bok, _ := cellFloat64(vb)
				if aok && bok {
					return fa < fb
				}
			}
			return va < vb
		}
		return false
	})
	return order
}

func bindCell(stmt *sqlite.Stmt, param int, cell string, c columnSchema) error {
	if cell == "" {
		stmt.BindNull(param)
		return nil
	}
	switch c.Type {
	case colInteger:
		v, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return err
		}
		stmt.BindInt64(param, v)
	case colReal:
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return err
		}
		stmt.BindFloat(param, v)
	default:
		stmt.BindText(param, cell)
	}
	return nil
}

// resolveStep builds pattern_headways from the loaded inputs, inside the
// bulk-load transaction.
func resolveStep(db *sqlite.Conn, datasets []*Dataset, tables map[string]*Table, cfg CommitConfig) (*ResolveResult, error) {
	in := ResolveInput{}

	for _, ds := range datasets {
		if ds.SourceID() != cfg.RoutesFaresSourceID {
			continue
		}
		mapping, ok := ds.Mappings["map_route_source"]
		if !ok {
			continue
		}
		for i := range mapping.Rows {
			in.RouteSources = append(in.RouteSources, RouteSourceRow{
				Source:        mapping.Get(i, "source"),
				Mode:          mapping.Get(i, "mode"),
				SourceRouteID: mapping.Get(i, "source_route_id"),
				SourceFile:    mapping.Get(i, "source_file"),
				RouteID:       mapping.Get(i, "route_id"),
				RouteKey:      mapping.Get(i, "route_key"),
			})
		}
	}

	stopCounts := make(map[string]int)
	if stops, ok := tables["pattern_stops"]; ok {
		for i := range stops.Rows {
			stopCounts[stops.Get(i, "pattern_id")]++
		}
	}
	if patterns, ok := tables["route_patterns"]; ok {
		for i := range patterns.Rows {
			seq, hasSeq, err := cellInt64(patterns.Get(i, "route_seq"))
			if err != nil {
				return nil, commitErrf("resolve headways",
					"route_patterns row %d: bad route_seq: %v", i, err)
			}
			pid := patterns.Get(i, "pattern_id")
			in.Patterns = append(in.Patterns, PatternCandidate{
				PatternID:   pid,
				RouteID:     patterns.Get(i, "route_id"),
				RouteSeq:    seq,
				HasRouteSeq: hasSeq,
				StopCount:   stopCounts[pid],
			})
		}
	}
	if freqs, ok := tables["headway_frequencies"]; ok {
		for i := range freqs.Rows {
			seq, hasSeq, err := cellInt64(freqs.Get(i, "route_seq"))
			if err != nil {
				return nil, commitErrf("resolve headways",
					"headway_frequencies row %d: bad route_seq: %v", i, err)
			}
			secs, _, err := cellInt64(freqs.Get(i, "headway_secs"))
			if err != nil {
				return nil, commitErrf("resolve headways",
					"headway_frequencies row %d: bad headway_secs: %v", i, err)
			}
			in.Frequencies = append(in.Frequencies, HeadwayFrequency{
				UpstreamRouteID: freqs.Get(i, "upstream_route_id"),
				RouteSeq:        seq,
				HasRouteSeq:     hasSeq,
				ServiceID:       freqs.Get(i, "service_id"),
				StartTime:       freqs.Get(i, "start_time"),
				EndTime:         freqs.Get(i, "end_time"),
				HeadwaySecs:     secs,
				SampleTripID:    freqs.Get(i, "sample_trip_id"),
			})
		}
	}

	res := ResolveHeadways(in)

	stmt, err := db.Prepare(`INSERT INTO pattern_headways
		(pattern_id, service_id, start_time, end_time, headway_secs, sample_trip_id)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6)`)
	if err != nil {
		return nil, &CommitError{Step: "resolve headways", Err: err}
	}
	schema := bundleSchema["pattern_headways"]
	for _, row := range res.Rows {
		if err := stmt.Reset(); err != nil {
			return nil, &CommitError{Step: "resolve headways", Err: err}
		}
		if err := stmt.ClearBindings(); err != nil {
			return nil, &CommitError{Step: "resolve headways", Err: err}
		}
		cells := []string{row.PatternID, row.ServiceID, row.StartTime, row.EndTime,
			strconv.FormatInt(row.HeadwaySecs, 10), row.SampleTripID}
		for i, cell := range cells {
			if err := bindCell(stmt, i+1, cell, schema.Columns[i]); err != nil {
				return nil, commitErrf("resolve headways", "bind %s: %v",
					schema.Columns[i].Name, err)
			}
		}
		if _, err := stmt.Step(); err != nil {
			return nil, &CommitError{Step: "resolve headways", Err: err}
		}
	}

	if cfg.CreateHeadwayDebugTables && len(res.Unresolved) > 0 {
		if err := writeUnresolvedDebugTable(db, res.Unresolved); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func writeUnresolvedDebugTable(db *sqlite.Conn, unresolved []UnresolvedFrequency) error {
	err := sqlitex.ExecTransient(db, `CREATE TABLE unresolved_headway_frequencies (
		reason TEXT NOT NULL,
		upstream_route_id TEXT,
		route_seq INTEGER,
		service_id TEXT,
		start_time TEXT,
		end_time TEXT,
		headway_secs INTEGER,
		sample_trip_id TEXT
	)`, sqlitexNoop)
	if err != nil {
		return &CommitError{Step: "debug table", Err: err}
	}

	stmt, err := db.Prepare(`INSERT INTO unresolved_headway_frequencies
		(reason, upstream_route_id, route_seq, service_id, start_time, end_time, headway_secs, sample_trip_id)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8)`)
	if err != nil {
		return &CommitError{Step: "debug table", Err: err}
	}
	for _, u := range unresolved {
		if err := stmt.Reset(); err != nil {
			return &CommitError{Step: "debug table", Err: err}
		}
		if err := stmt.ClearBindings(); err != nil {
			return &CommitError{Step: "debug table", Err: err}
		}
		stmt.BindText(1, u.Reason)
		stmt.BindText(2, u.Freq.UpstreamRouteID)
		if u.Freq.HasRouteSeq {
			stmt.BindInt64(3, u.Freq.RouteSeq)
		} else {
			stmt.BindNull(3)
		}
		stmt.BindText(4, u.Freq.ServiceID)
		stmt.BindText(5, u.Freq.StartTime)
		stmt.BindText(6, u.Freq.EndTime)
		stmt.BindInt64(7, u.Freq.HeadwaySecs)
		if u.Freq.SampleTripID == "" {
			stmt.BindNull(8)
		} else {
			stmt.BindText(8, u.Freq.SampleTripID)
		}
		if _, err := stmt.Step(); err != nil {
			return &CommitError{Step: "debug table", Err: err}
		}
	}
	return nil
}

func maintain(db *sqlite.Conn, cfg CommitConfig) error {
	if cfg.RunAnalyze {
		if err := sqlitex.ExecTransient(db, "ANALYZE", sqlitexNoop); err != nil {
			return &CommitError{Step: "analyze", Err: err}
		}
	}
	if cfg.RunOptimize {
		if err := sqlitex.ExecTransient(db, "PRAGMA optimize", sqlitexNoop); err != nil {
			return &CommitError{Step: "optimize", Err: err}
		}
	}
	if cfg.RunVacuum {
		if err := sqlitex.ExecTransient(db, "VACUUM", sqlitexNoop); err != nil {
			return &CommitError{Step: "vacuum", Err: err}
		}
	}

	for _, pragma := range []string{
		"journal_mode = " + cfg.FinalJournalMode,
		"synchronous = " + cfg.FinalSynchronous,
		"foreign_keys = ON",
	} {
		if err := sqlitex.ExecTransient(db, "PRAGMA "+pragma, sqlitexNoop); err != nil {
			return &CommitError{Step: "pragma " + pragma, Err: err}
		}
	}
	if err := sqlitex.ExecTransient(db, "PRAGMA wal_checkpoint(TRUNCATE)", sqlitexNoop); err != nil {
		return &CommitError{Step: "wal_checkpoint", Err: err}
	}
	return nil
}

const fkCheckPreviewLimit = 25

func runChecks(db *sqlite.Conn) error {
	integrity := ""
	err := sqlitex.ExecTransient(db, "PRAGMA integrity_check", func(stmt *sqlite.Stmt) error {
		if integrity == "" {
			integrity = stmt.ColumnText(0)
		}
		return nil
	})
	if err != nil {
		return &CommitError{Step: "integrity_check", Err: err}
	}
	if integrity != "ok" {
		return commitErrf("integrity_check", "database is corrupt: %s", integrity)
	}

	var fkViolations []string
	err = sqlitex.ExecTransient(db, "PRAGMA foreign_key_check", func(stmt *sqlite.Stmt) error {
		if len(fkViolations) < fkCheckPreviewLimit {
			fkViolations = append(fkViolations, fmt.Sprintf("%s rowid=%d -> %s",
				stmt.ColumnText(0), stmt.ColumnInt64(1), stmt.ColumnText(2)))
		}
		return nil
	})
	if err != nil {
		return &CommitError{Step: "foreign_key_check", Err: err}
	}
	if len(fkViolations) > 0 {
		return commitErrf("foreign_key_check", "%d+ violation(s): %s",
			len(fkViolations), strings.Join(fkViolations, "; "))
	}

	var brokenPatterns []string
	err = sqlitex.ExecTransient(db, `
		SELECT pattern_id
		FROM pattern_stops
		GROUP BY pattern_id
		HAVING MIN(seq) != 1
			OR COUNT(DISTINCT seq) != MAX(seq) - MIN(seq) + 1
			OR COUNT(*) != COUNT(DISTINCT seq)
		ORDER BY pattern_id`,
		func(stmt *sqlite.Stmt) error {
			if len(brokenPatterns) < fkCheckPreviewLimit {
				brokenPatterns = append(brokenPatterns, stmt.ColumnText(0))
			}
			return nil
		})
	if err != nil {
		return &CommitError{Step: "pattern seq check", Err: err}
	}
	if len(brokenPatterns) > 0 {
		return commitErrf("pattern seq check",
			"non-contiguous stop sequences in pattern(s) %s", strings.Join(brokenPatterns, ", "))
	}
	return nil
}

func writeBuildMetadata(bundlePath string, meta *BuildMetadata) error {
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return &CommitError{Step: "encode metadata", Err: err}
	}
	raw = append(raw, '\n')

	path := filepath.Join(filepath.Dir(bundlePath), "build_metadata.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return &CommitError{Step: "write metadata", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &CommitError{Step: "write metadata", Err: err}
	}
	return nil
}

func removeBundleFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn(fmt.Sprintf("Failed to remove %s: %v", p, err))
		}
	}
}
