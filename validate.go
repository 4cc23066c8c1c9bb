package transitbundle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/geojson"
	"github.com/tidwall/geojson/geometry"
)

// ValidateDataset runs a spec's rules over a dataset and produces a report.
// Findings are accumulated in the report, never returned as errors; the
// error return is reserved for broken inputs the engine cannot read at all
// (e.g. an unparseable service-area file).
//
// Hard checks run first: required tables, column presence, key nullability,
// uniqueness, cross-table references, stop-sequence contiguity, and the
// unresolved-row gate. When a core table is missing the remaining hard
// checks are skipped, since they would only cascade. Soft checks run last
// and only ever emit warnings.
func ValidateDataset(ds *Dataset, spec *Spec, cfg ValidateConfig) (*Report, error) {
	c := &checker{ds: ds, spec: spec, cfg: cfg}

	slog.Info(fmt.Sprintf("Validating %s against %s", ds.SourceID(), spec.RulesVersion()))

	coreMissing := c.checkRequiredTables()
	if !(coreMissing && cfg.HardStopOnMissingCore) {
		c.checkTables()
		c.checkForeignKeys()
		c.checkPatternSeqContiguity()
		c.checkUnresolved()
		if err := c.softChecks(); err != nil {
			return nil, err
		}
	} else {
		slog.Warn("Core tables missing, skipping remaining checks")
	}

	report := &Report{
		ReportVersion: reportVersion,
		SourceID:      ds.SourceID(),
		Version:       ds.Version(),
		RulesVersion:  spec.RulesVersion(),
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Spec:          ReportSpec{SpecID: spec.ID, SpecVersion: spec.Version},
		Issues:        c.issues,
		Config:        cfg,
	}
	report.Summary = ReportSummary{
		TablesChecked:     c.tablesChecked,
		UnresolvedChecked: len(ds.Unresolved),
		MappingsChecked:   len(ds.Mappings),
	}
	for _, issue := range c.issues {
		switch issue.Severity {
		case SeverityWarn:
			report.Summary.Warnings++
		default:
			report.Summary.Errors++
		}
	}

	slog.Info(fmt.Sprintf("Validation finished: %d error(s), %d warning(s)",
		report.Summary.Errors, report.Summary.Warnings))
	return report, nil
}

type checker struct {
	ds   *Dataset
	spec *Spec
	cfg  ValidateConfig

	issues        []Issue
	tablesChecked int
}

func (c *checker) append(issue Issue) {
	if issue.Severity == "" {
		issue.Severity = SeverityError
	}
	level := slog.LevelError
	if issue.Severity == SeverityWarn {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, fmt.Sprintf("%s %s: %s (%d row(s))",
		issue.Code, issue.Table, issue.Message, issue.Count))
	c.issues = append(c.issues, issue)
}

func (c *checker) checkRequiredTables() (coreMissing bool) {
	if len(c.ds.Tables) == 0 {
		c.append(Issue{
			Code:    CodeTablesNotFound,
			Message: "dataset contains no normalized tables",
			Count:   1,
		})
		return true
	}

	for _, name := range c.spec.RequiredTables {
		if _, ok := c.ds.Tables[name]; !ok {
			c.append(Issue{
				Code:    CodeTableMissing,
				Table:   name,
				Message: "required table is missing",
				Count:   1,
			})
			for _, core := range c.spec.CoreTables {
				if core == name {
					coreMissing = true
				}
			}
		}
	}
	return coreMissing
}

func (c *checker) checkTables() {
	for _, name := range c.spec.RequiredTables {
		t, ok := c.ds.Tables[name]
		if !ok {
			continue
		}
		ts := c.spec.Tables[name]
		c.tablesChecked++

		var missing []string
		for _, ref := range ts.RequiredColumns {
			if ref.resolve(t) == "" {
				missing = append(missing, ref.String())
			}
		}
		if len(missing) > 0 {
			c.append(Issue{
				Code:    CodeSchemaMissingColumns,
				Table:   name,
				Message: fmt.Sprintf("missing column(s): %s", strings.Join(missing, ", ")),
				Count:   len(missing),
				Columns: missing,
			})
			// Column-level checks on a table with missing key columns would
			// just repeat the same finding.
			continue
		}

		c.checkNotNull(t, ts)
		for _, u := range ts.Uniqueness {
			c.checkUniqueness(t, ts, u)
		}
	}
}

func (c *checker) checkNotNull(t *Table, ts TableSpec) {
	for _, ref := range ts.NotNullColumns {
		colName := ref.resolve(t)
		if colName == "" {
			continue
		}
		var bad []int
		for i := range t.Rows {
			if t.Get(i, colName) == "" {
				bad = append(bad, i)
			}
		}
		if len(bad) > 0 {
			c.append(Issue{
				Code:    CodeKeyColumnNull,
				Table:   t.Name,
				Message: fmt.Sprintf("column %s has NULL values", colName),
				Count:   len(bad),
				Columns: []string{colName},
				Samples: c.sampleRows(t, bad, ts.SampleSort),
			})
		}
	}
}

func (c *checker) checkUniqueness(t *Table, ts TableSpec, u UniquenessSpec) {
	var cols []string
	for _, ref := range u.Columns {
		colName := ref.resolve(t)
		if colName == "" {
			// An optional column (e.g. route_seq) that the feed does not
			// carry is simply dropped from the key.
			continue
		}
		cols = append(cols, colName)
	}
	if len(cols) == 0 {
		return
	}

	seen := make(map[string]int, t.NumRows())
	var dupes []int
rows:
	for i := range t.Rows {
		parts := make([]string, len(cols))
		for j, colName := range cols {
			parts[j] = t.Get(i, colName)
			// NULL never equals NULL; a NULL in a key column is the
			// not-null check's finding, not a duplicate.
			if parts[j] == "" {
				continue rows
			}
		}
		key := strings.Join(parts, "\x1f")
		if first, ok := seen[key]; ok {
			if first >= 0 {
				dupes = append(dupes, first)
				seen[key] = -1
			}
			dupes = append(dupes, i)
		} else {
			seen[key] = i
		}
	}
	if len(dupes) > 0 {
		code := u.Code
		if code == "" {
			code = CodeUniquenessViolation
		}
		msg := u.Message
		if msg == "" {
			msg = fmt.Sprintf("duplicate values for (%s)", strings.Join(cols, ", "))
		}
		c.append(Issue{
			Severity: u.Severity,
			Code:     code,
			Table:    t.Name,
			Message:  msg,
			Count:    len(dupes),
			Columns:  cols,
			Samples:  c.sampleRows(t, dupes, ts.SampleSort),
		})
	}
}

func (c *checker) checkForeignKeys() {
	for _, fk := range c.spec.ForeignKeys {
		child, ok := c.ds.Tables[fk.ChildTable]
		if !ok {
			continue
		}
		parent, ok := c.ds.Tables[fk.ParentTable]
		if !ok {
			continue
		}
		childCol := fk.ChildCol.resolve(child)
		parentCol := fk.ParentCol.resolve(parent)
		if childCol == "" || parentCol == "" {
			continue
		}

		known := make(map[string]bool, parent.NumRows())
		for i := range parent.Rows {
			known[parent.Get(i, parentCol)] = true
		}

		var bad []int
		for i := range child.Rows {
			v := child.Get(i, childCol)
			if v == "" && !fk.CheckNulls {
				continue
			}
			if !known[v] {
				bad = append(bad, i)
			}
		}
		if len(bad) == 0 {
			continue
		}

		msg := fk.Message
		if msg == "" {
			msg = fmt.Sprintf("%s.%s references missing %s.%s",
				fk.ChildTable, childCol, fk.ParentTable, parentCol)
		}
		samples := c.sampleRows(child, bad, c.spec.Tables[fk.ChildTable].SampleSort)
		hint := c.enrichSamples(child, samples, fk.HintJoinKeys)
		c.append(Issue{
			Severity:   fk.Severity,
			Code:       fk.Code,
			Table:      fk.ChildTable,
			Message:    msg,
			Count:      len(bad),
			Columns:    []string{childCol},
			Samples:    samples,
			SourceHint: hint,
		})
	}
}

// hintMappings routes a hint join key to the mapping table that can name
// the upstream file and row a value came from.
var hintMappings = map[string]string{
	"route_id":   "map_route_source",
	"place_id":   "map_place_source",
	"pattern_id": "map_pattern_source",
}

// enrichSamples attaches src_-prefixed columns from the source-identity
// mapping tables to issue samples. Enrichment is additive only: it never
// changes which rows are reported or whether the run passes.
func (c *checker) enrichSamples(t *Table, samples []map[string]string, hintKeys []string) string {
	var used []string
	for _, key := range hintKeys {
		mapName, ok := hintMappings[key]
		if !ok {
			continue
		}
		mapping, ok := c.ds.Mappings[mapName]
		if !ok || !mapping.HasColumn(key) {
			continue
		}

		byValue := make(map[string]int, mapping.NumRows())
		for i := range mapping.Rows {
			v := mapping.Get(i, key)
			if _, dup := byValue[v]; !dup {
				byValue[v] = i
			}
		}

		matched := false
		for _, sample := range samples {
			row, ok := byValue[sample[key]]
			if !ok {
				continue
			}
			matched = true
			for _, mapCol := range mapping.Columns {
				if mapCol == key {
					continue
				}
				if v := mapping.Get(row, mapCol); v != "" {
					sample["src_"+mapCol] = v
				}
			}
		}
		if matched {
			used = append(used, mapName)
		}
	}
	return strings.Join(used, ",")
}

func (c *checker) checkPatternSeqContiguity() {
	if !c.cfg.RequireContiguousSeq {
		return
	}
	t, ok := c.ds.Tables["pattern_stops"]
	if !ok || !t.HasColumn("pattern_id") || !t.HasColumn("seq") {
		return
	}

	type patternAgg struct {
		min, max int64
		rows     int
		uniq     map[int64]bool
		invalid  bool
	}
	patterns := make(map[string]*patternAgg)
	for i := range t.Rows {
		pid := t.Get(i, "pattern_id")
		agg := patterns[pid]
		if agg == nil {
			agg = &patternAgg{uniq: make(map[int64]bool)}
			patterns[pid] = agg
		}
		agg.rows++

		seq, ok, err := cellInt64(t.Get(i, "seq"))
		if err != nil || !ok {
			agg.invalid = true
			continue
		}
		if len(agg.uniq) == 0 || seq < agg.min {
			agg.min = seq
		}
		if len(agg.uniq) == 0 || seq > agg.max {
			agg.max = seq
		}
		agg.uniq[seq] = true
	}

	seqSample := func(pid string, agg *patternAgg) map[string]string {
		return map[string]string{
			"pattern_id":   pid,
			"min_seq":      strconv.FormatInt(agg.min, 10),
			"max_seq":      strconv.FormatInt(agg.max, 10),
			"rows":         strconv.Itoa(agg.rows),
			"distinct_seq": strconv.Itoa(len(agg.uniq)),
		}
	}

	var baseBad, contigBad []string
	for pid, agg := range patterns {
		if len(agg.uniq) == 0 {
			continue
		}
		if agg.min != c.cfg.SeqBase {
			baseBad = append(baseBad, pid)
		}
		// A contiguous 1..n sequence has exactly max-min+1 distinct values
		// and no repeated rows. {1,2,4} fails the first clause, {1,1,2}
		// the second.
		nuniq := int64(len(agg.uniq))
		if nuniq != agg.max-agg.min+1 || int64(agg.rows) != nuniq || agg.invalid {
			contigBad = append(contigBad, pid)
		}
	}
	sort.Strings(baseBad)
	sort.Strings(contigBad)

	if len(baseBad) > 0 {
		samples := make([]map[string]string, 0, len(baseBad))
		for _, pid := range baseBad[:min(len(baseBad), c.cfg.SampleSize)] {
			samples = append(samples, seqSample(pid, patterns[pid]))
		}
		c.append(Issue{
			Code:    CodePatternSeqBase,
			Table:   "pattern_stops",
			Message: fmt.Sprintf("pattern stop sequences do not start at %d", c.cfg.SeqBase),
			Count:   len(baseBad),
			Columns: []string{"pattern_id", "seq"},
			Samples: samples,
		})
	}
	if len(contigBad) > 0 {
		samples := make([]map[string]string, 0, len(contigBad))
		for _, pid := range contigBad[:min(len(contigBad), c.cfg.SampleSize)] {
			samples = append(samples, seqSample(pid, patterns[pid]))
		}
		c.append(Issue{
			Code:    CodePatternSeqGapsOrDupes,
			Table:   "pattern_stops",
			Message: "pattern stop sequences have gaps or duplicates",
			Count:   len(contigBad),
			Columns: []string{"pattern_id", "seq"},
			Samples: samples,
		})
	}
}

func patternIDSamples(ids []string, limit int) []map[string]string {
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]map[string]string, len(ids))
	for i, id := range ids {
		out[i] = map[string]string{"pattern_id": id}
	}
	return out
}

func (c *checker) checkUnresolved() {
	var names []string
	for name := range c.ds.Unresolved {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := c.ds.Unresolved[name]
		if t.NumRows() == 0 {
			continue
		}

		severity := SeverityError
		us, hasSpec := c.spec.Unresolved[name]
		if c.cfg.unresolvedAllowed(name) || (hasSpec && !us.FailIfNonempty) {
			severity = SeverityWarn
		}

		indices := make([]int, t.NumRows())
		for i := range indices {
			indices[i] = i
		}
		c.append(Issue{
			Severity: severity,
			Code:     CodeUnresolvedNonempty,
			Table:    name,
			Message:  fmt.Sprintf("unresolved table %s has %d row(s)", name, t.NumRows()),
			Count:    t.NumRows(),
			Samples:  c.sampleRows(t, indices, us.SampleSort),
		})
	}
}

func (c *checker) softChecks() error {
	c.checkPatternLengths()
	c.checkRoutesWithoutFares()
	return c.checkServiceArea()
}

func (c *checker) checkPatternLengths() {
	t, ok := c.ds.Tables["pattern_stops"]
	if !ok || !t.HasColumn("pattern_id") {
		return
	}

	counts := make(map[string]int)
	for i := range t.Rows {
		counts[t.Get(i, "pattern_id")]++
	}

	var short, long []string
	for pid, n := range counts {
		if n < c.cfg.MinPatternStopsWarn {
			short = append(short, pid)
		}
		if c.cfg.MaxPatternStopsWarn > 0 && n > c.cfg.MaxPatternStopsWarn {
			long = append(long, pid)
		}
	}
	sort.Strings(short)
	sort.Strings(long)

	if len(short) > 0 {
		c.append(Issue{
			Severity: SeverityWarn,
			Code:     CodePatternTooShort,
			Table:    "pattern_stops",
			Message:  fmt.Sprintf("patterns with fewer than %d stops", c.cfg.MinPatternStopsWarn),
			Count:    len(short),
			Samples:  patternIDSamples(short, c.cfg.SampleSize),
		})
	}
	if len(long) > 0 {
		c.append(Issue{
			Severity: SeverityWarn,
			Code:     CodePatternTooLong,
			Table:    "pattern_stops",
			Message:  fmt.Sprintf("patterns with more than %d stops", c.cfg.MaxPatternStopsWarn),
			Count:    len(long),
			Samples:  patternIDSamples(long, c.cfg.SampleSize),
		})
	}
}

func (c *checker) checkRoutesWithoutFares() {
	routes, ok := c.ds.Tables["routes"]
	if !ok || !routes.HasColumn("route_id") {
		return
	}
	rules, ok := c.ds.Tables["fare_rules"]
	if !ok || !rules.HasColumn("route_id") {
		return
	}

	covered := make(map[string]bool, rules.NumRows())
	for i := range rules.Rows {
		covered[rules.Get(i, "route_id")] = true
	}

	var bad []int
	for i := range routes.Rows {
		if !covered[routes.Get(i, "route_id")] {
			bad = append(bad, i)
		}
	}
	if len(bad) > 0 {
		c.append(Issue{
			Severity: SeverityWarn,
			Code:     CodeRouteMissingFares,
			Table:    "routes",
			Message:  "routes with no fare rules",
			Count:    len(bad),
			Columns:  []string{"route_id"},
			Samples:  c.sampleRows(routes, bad, []string{"route_id"}),
		})
	}
}

func (c *checker) checkServiceArea() error {
	if c.cfg.ServiceAreaPath == "" {
		return nil
	}
	places, ok := c.ds.Tables["places"]
	if !ok || !places.HasColumn("lat") || !places.HasColumn("lon") {
		return nil
	}

	raw, err := os.ReadFile(c.cfg.ServiceAreaPath)
	if err != nil {
		return fmt.Errorf("read service area: %w", err)
	}
	area, err := geojson.Parse(string(raw), &geojson.ParseOptions{RequireValid: true})
	if err != nil {
		return fmt.Errorf("parse service area: %w", err)
	}

	var outside []int
	for i := range places.Rows {
		lat, latOK, latErr := cellFloat64(places.Get(i, "lat"))
		lon, lonOK, lonErr := cellFloat64(places.Get(i, "lon"))
		if latErr != nil || lonErr != nil || !latOK || !lonOK {
			continue
		}
		point := geojson.NewPoint(geometry.Point{X: lon, Y: lat})
		if !area.Contains(point) {
			outside = append(outside, i)
		}
	}
	if len(outside) > 0 {
		c.append(Issue{
			Severity: SeverityWarn,
			Code:     CodePlaceOutsideRegion,
			Table:    "places",
			Message:  "places outside the service area",
			Count:    len(outside),
			Columns:  []string{"place_id", "lat", "lon"},
			Samples:  c.sampleRows(places, outside, c.spec.Tables["places"].SampleSort),
		})
	}
	return nil
}

// sampleRows turns row indices into bounded, deterministically ordered
// sample maps. Empty cells are omitted, mirroring the NULL convention.
func (c *checker) sampleRows(t *Table, indices []int, sortCols []string) []map[string]string {
	if len(sortCols) > 0 {
		indices = append([]int(nil), indices...)
		sort.SliceStable(indices, func(a, b int) bool {
			for _, colName := range sortCols {
				va, vb := t.Get(indices[a], colName), t.Get(indices[b], colName)
				if va != vb {
					return va < vb
				}
			}
			return indices[a] < indices[b]
		})
	}
	if len(indices) > c.cfg.SampleSize {
		indices = indices[:c.cfg.SampleSize]
	}

	out := make([]map[string]string, 0, len(indices))
	for _, i := range indices {
		sample := make(map[string]string)
		for _, colName := range t.Columns {
			if v := t.Get(i, colName); v != "" {
				sample[colName] = v
			}
		}
		out = append(out, sample)
	}
	return out
}
