package transitbundle

// ColumnRef names a column by its canonical name plus acceptable aliases;
// the first name present in a table wins.
type ColumnRef []string

func col(names ...string) ColumnRef { return ColumnRef(names) }

func (r ColumnRef) String() string {
	out := ""
	for i, n := range r {
		if i > 0 {
			out += "|"
		}
		out += n
	}
	return out
}

// resolve picks the first alias present in the table, or "" if none is.
func (r ColumnRef) resolve(t *Table) string {
	for _, name := range r {
		if t.HasColumn(name) {
			return name
		}
	}
	return ""
}

type UniquenessSpec struct {
	Columns  []ColumnRef
	Code     IssueCode
	Severity Severity // defaults to ERROR
	Message  string
}

type ForeignKeySpec struct {
	ChildTable  string
	ChildCol    ColumnRef
	ParentTable string
	ParentCol   ColumnRef
	Code        IssueCode
	Severity    Severity // defaults to ERROR
	Message     string
	// CheckNulls makes NULL child values count as missing instead of being
	// skipped (nullable FKs are only checked for non-null values by default).
	CheckNulls bool
	// HintJoinKeys are columns whose values are looked up in the declared
	// source-identity mapping tables to enrich issue samples.
	HintJoinKeys []string
}

type TableSpec struct {
	RequiredColumns []ColumnRef
	NotNullColumns  []ColumnRef
	SampleSort      []string
	Uniqueness      []UniquenessSpec
}

type UnresolvedSpec struct {
	FailIfNonempty bool
	SampleSort     []string
}

// Spec is a full validation rule set for one source kind. Specs are plain
// values constructed by the functions below and passed in explicitly;
// there is no cached process-wide instance.
type Spec struct {
	ID             string
	Version        string
	CoreTables     []string
	RequiredTables []string
	Tables         map[string]TableSpec
	ForeignKeys    []ForeignKeySpec
	Unresolved     map[string]UnresolvedSpec
}

func (s *Spec) RulesVersion() string { return s.ID + "@" + s.Version }

func canonicalBaseTables() map[string]TableSpec {
	return map[string]TableSpec{
		"operators": {
			RequiredColumns: []ColumnRef{col("operator_id"), col("operator_code")},
			NotNullColumns:  []ColumnRef{col("operator_id"), col("operator_code")},
			SampleSort:      []string{"operator_id"},
			Uniqueness: []UniquenessSpec{
				{Columns: []ColumnRef{col("operator_id")}, Code: "OPERATOR_ID_NOT_UNIQUE"},
			},
		},
		"places": {
			RequiredColumns: []ColumnRef{col("place_id"), col("place_key", "stop_key")},
			NotNullColumns:  []ColumnRef{col("place_id"), col("place_key", "stop_key")},
			SampleSort:      []string{"place_id"},
			Uniqueness: []UniquenessSpec{
				{Columns: []ColumnRef{col("place_id")}, Code: "PLACE_ID_NOT_UNIQUE"},
				{Columns: []ColumnRef{col("place_key", "stop_key")}, Code: "PLACE_KEY_NOT_UNIQUE"},
			},
		},
		"routes": {
			RequiredColumns: []ColumnRef{col("route_id"), col("route_key"), col("operator_id")},
			NotNullColumns:  []ColumnRef{col("route_id"), col("route_key"), col("operator_id")},
			SampleSort:      []string{"route_id"},
			Uniqueness: []UniquenessSpec{
				{Columns: []ColumnRef{col("route_id")}, Code: "ROUTE_ID_NOT_UNIQUE"},
				{Columns: []ColumnRef{col("route_key")}, Code: "ROUTE_KEY_NOT_UNIQUE"},
			},
		},
		"route_patterns": {
			RequiredColumns: []ColumnRef{col("pattern_id"), col("pattern_key"), col("route_id")},
			NotNullColumns:  []ColumnRef{col("pattern_id"), col("route_id")},
			SampleSort:      []string{"pattern_id"},
			Uniqueness: []UniquenessSpec{
				{Columns: []ColumnRef{col("pattern_id")}, Code: "PATTERN_ID_NOT_UNIQUE"},
				{Columns: []ColumnRef{col("pattern_key")}, Code: "PATTERN_KEY_NOT_UNIQUE"},
			},
		},
		"pattern_stops": {
			RequiredColumns: []ColumnRef{col("pattern_id"), col("seq"), col("place_id")},
			NotNullColumns:  []ColumnRef{col("pattern_id"), col("seq"), col("place_id")},
			SampleSort:      []string{"pattern_id", "seq"},
			Uniqueness: []UniquenessSpec{
				{Columns: []ColumnRef{col("pattern_id"), col("seq")}, Code: "PATTERN_STOP_SEQ_NOT_UNIQUE"},
			},
		},
		// Fare tables are declared here so their column and uniqueness rules
		// exist, but only the fares spec lists them as required.
		"fare_products": {
			RequiredColumns: []ColumnRef{col("fare_product_id")},
			NotNullColumns:  []ColumnRef{col("fare_product_id")},
			SampleSort:      []string{"fare_product_id"},
			Uniqueness: []UniquenessSpec{
				{Columns: []ColumnRef{col("fare_product_id")}, Code: "FARE_PRODUCT_ID_NOT_UNIQUE"},
			},
		},
		"fare_rules": {
			RequiredColumns: []ColumnRef{col("fare_rule_id")},
			NotNullColumns:  []ColumnRef{col("fare_rule_id")},
			SampleSort:      []string{"fare_rule_id"},
			Uniqueness: []UniquenessSpec{
				{Columns: []ColumnRef{col("fare_rule_id")}, Code: "FARE_RULE_ID_NOT_UNIQUE"},
				{Columns: []ColumnRef{col("rule_key")}, Code: "FARE_RULE_KEY_NOT_UNIQUE"},
			},
		},
		"fare_amounts": {
			RequiredColumns: []ColumnRef{col("fare_rule_id")},
			NotNullColumns:  []ColumnRef{col("fare_rule_id")},
			SampleSort:      []string{"fare_rule_id"},
			Uniqueness: []UniquenessSpec{
				{Columns: []ColumnRef{col("fare_rule_id"), col("fare_product_id")}, Code: "FARE_AMOUNT_PK_NOT_UNIQUE"},
			},
		},
	}
}

func canonicalForeignKeys() []ForeignKeySpec {
	return []ForeignKeySpec{
		{
			ChildTable: "routes", ChildCol: col("operator_id"),
			ParentTable: "operators", ParentCol: col("operator_id"),
			Code: "ROUTE_MISSING_OPERATOR", HintJoinKeys: []string{"route_id"},
		},
		{
			ChildTable: "route_patterns", ChildCol: col("route_id"),
			ParentTable: "routes", ParentCol: col("route_id"),
			Code: "PATTERN_MISSING_ROUTE", HintJoinKeys: []string{"pattern_id", "route_id"},
		},
		{
			ChildTable: "pattern_stops", ChildCol: col("pattern_id"),
			ParentTable: "route_patterns", ParentCol: col("pattern_id"),
			Code: "PATTERN_STOP_MISSING_PATTERN", HintJoinKeys: []string{"pattern_id"},
		},
		{
			ChildTable: "pattern_stops", ChildCol: col("place_id"),
			ParentTable: "places", ParentCol: col("place_id"),
			Code: "PATTERN_STOP_MISSING_PLACE", HintJoinKeys: []string{"pattern_id", "place_id"},
		},
		{
			ChildTable: "fare_amounts", ChildCol: col("fare_rule_id"),
			ParentTable: "fare_rules", ParentCol: col("fare_rule_id"),
			Code: "FARE_AMOUNT_MISSING_RULE", HintJoinKeys: []string{"fare_rule_id"},
		},
		{
			ChildTable: "fare_amounts", ChildCol: col("fare_product_id"),
			ParentTable: "fare_products", ParentCol: col("fare_product_id"),
			Code: "FARE_AMOUNT_MISSING_PRODUCT", HintJoinKeys: []string{"fare_rule_id", "fare_product_id"},
		},
		{
			ChildTable: "fare_rules", ChildCol: col("route_id"),
			ParentTable: "routes", ParentCol: col("route_id"),
			Code: "FARE_RULE_MISSING_ROUTE", HintJoinKeys: []string{"fare_rule_id", "route_id"},
		},
		{
			ChildTable: "fare_rules", ChildCol: col("pattern_id"),
			ParentTable: "route_patterns", ParentCol: col("pattern_id"),
			Code: "FARE_RULE_MISSING_PATTERN", HintJoinKeys: []string{"fare_rule_id", "pattern_id"},
		},
	}
}

// CanonicalSpec validates the route/place/pattern core tables.
func CanonicalSpec() *Spec {
	core := []string{"operators", "places", "routes", "route_patterns", "pattern_stops"}
	return &Spec{
		ID:             "canonical_base",
		Version:        "1.0",
		CoreTables:     core,
		RequiredTables: core,
		Tables:         canonicalBaseTables(),
		ForeignKeys:    canonicalForeignKeys(),
		Unresolved:     map[string]UnresolvedSpec{},
	}
}

// RoutesFaresSpec extends the canonical spec with the fare tables and the
// fare-orphan unresolved gate.
func RoutesFaresSpec() *Spec {
	s := CanonicalSpec()
	s.ID = "routes_fares_xml"
	s.RequiredTables = append(s.RequiredTables, "fare_products", "fare_rules", "fare_amounts")
	s.Unresolved["fare_orphans"] = UnresolvedSpec{
		FailIfNonempty: true,
		SampleSort:     []string{"mode", "route_id_norm", "source_file", "source_row"},
	}
	return s
}

// HeadwaySpec validates the GTFS headway feed tables.
func HeadwaySpec() *Spec {
	core := []string{"service_calendars", "headway_trips", "headway_frequencies"}
	return &Spec{
		ID:             "pt_headway_gtfs",
		Version:        "1.0",
		CoreTables:     core,
		RequiredTables: core,
		Tables: map[string]TableSpec{
			"service_calendars": {
				RequiredColumns: []ColumnRef{col("service_id")},
				NotNullColumns:  []ColumnRef{col("service_id")},
				SampleSort:      []string{"service_id"},
				Uniqueness: []UniquenessSpec{
					{Columns: []ColumnRef{col("service_id")}, Code: "SERVICE_ID_NOT_UNIQUE"},
				},
			},
			"headway_trips": {
				RequiredColumns: []ColumnRef{col("trip_id"), col("upstream_route_id"), col("service_id")},
				NotNullColumns:  []ColumnRef{col("trip_id"), col("upstream_route_id"), col("service_id")},
				SampleSort:      []string{"upstream_route_id", "service_id", "trip_id"},
				Uniqueness: []UniquenessSpec{
					{Columns: []ColumnRef{col("trip_id")}, Code: "TRIP_ID_NOT_UNIQUE"},
				},
			},
			"headway_frequencies": {
				RequiredColumns: []ColumnRef{
					col("upstream_route_id"), col("service_id"),
					col("start_time"), col("end_time"), col("headway_secs"),
				},
				NotNullColumns: []ColumnRef{
					col("upstream_route_id"), col("service_id"),
					col("start_time"), col("end_time"), col("headway_secs"),
				},
				SampleSort: []string{"upstream_route_id", "service_id", "start_time", "end_time"},
				Uniqueness: []UniquenessSpec{
					{
						Columns: []ColumnRef{
							col("upstream_route_id"), col("route_seq"),
							col("service_id"), col("start_time"), col("end_time"),
						},
						Code: "HEADWAY_FREQ_KEY_NOT_UNIQUE",
					},
				},
			},
		},
		ForeignKeys: []ForeignKeySpec{
			{
				ChildTable: "headway_trips", ChildCol: col("service_id"),
				ParentTable: "service_calendars", ParentCol: col("service_id"),
				Code: "TRIP_MISSING_SERVICE", HintJoinKeys: []string{"trip_id", "service_id"},
			},
			{
				ChildTable: "headway_frequencies", ChildCol: col("service_id"),
				ParentTable: "service_calendars", ParentCol: col("service_id"),
				Code: "FREQ_MISSING_SERVICE", HintJoinKeys: []string{"upstream_route_id", "service_id"},
			},
			{
				ChildTable: "headway_frequencies", ChildCol: col("sample_trip_id"),
				ParentTable: "headway_trips", ParentCol: col("trip_id"),
				Code: "FREQ_SAMPLE_TRIP_MISSING", Severity: SeverityWarn,
				HintJoinKeys: []string{"upstream_route_id", "service_id"},
			},
		},
		Unresolved: map[string]UnresolvedSpec{},
	}
}

// SpecForSource returns the registered spec for a source id, or nil when the
// source has no validation rules.
func SpecForSource(sourceID string) *Spec {
	switch sourceID {
	case "routes_fares_xml":
		return RoutesFaresSpec()
	case "pt_headway_gtfs":
		return HeadwaySpec()
	case "canonical_base":
		return CanonicalSpec()
	}
	return nil
}
