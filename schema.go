package transitbundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SchemaVersion is written to PRAGMA user_version and the meta row of every
// bundle this code produces. Bump it whenever the DDL below changes shape.
const SchemaVersion = 3

type columnType string

const (
	colText    columnType = "TEXT"
	colInteger columnType = "INTEGER"
	colReal    columnType = "REAL"
)

type columnSchema struct {
	Name       string
	Type       columnType
	NotNull    bool
	References string // "table(column)" or ""
}

type tableSchema struct {
	PrimaryKey []string
	Columns    []columnSchema
	Check      string
}

// bundleTableOrder is the declaration order for the canonical bundle. Parents
// come before children so the DDL reads naturally; the committer disables
// foreign keys during bulk load, so the order is cosmetic rather than
// load-bearing.
var bundleTableOrder = []string{
	"operators",
	"places",
	"routes",
	"route_patterns",
	"pattern_stops",
	"fare_products",
	"fare_rules",
	"fare_amounts",
	"service_calendars",
	"headway_trips",
	"headway_frequencies",
	"pattern_headways",
	"meta",
}

// derivedTables are rebuilt on every commit and never accepted as input.
var derivedTables = map[string]bool{
	"pattern_headways": true,
	"meta":             true,
}

var bundleSchema = map[string]tableSchema{
	"operators": {
		PrimaryKey: []string{"operator_id"},
		Columns: []columnSchema{
			{Name: "operator_id", Type: colInteger, NotNull: true},
			{Name: "operator_code", Type: colText, NotNull: true},
			{Name: "name_en", Type: colText},
			{Name: "name_tc", Type: colText},
			{Name: "name_sc", Type: colText},
		},
	},

	"places": {
		PrimaryKey: []string{"place_id"},
		Columns: []columnSchema{
			{Name: "place_id", Type: colInteger, NotNull: true},
			{Name: "place_key", Type: colText, NotNull: true},
			{Name: "place_type", Type: colText},
			{Name: "name_en", Type: colText},
			{Name: "name_tc", Type: colText},
			{Name: "name_sc", Type: colText},
			{Name: "lat", Type: colReal},
			{Name: "lon", Type: colReal},
			{Name: "parent_place_id", Type: colInteger, References: "places(place_id)"},
		},
	},

	"routes": {
		PrimaryKey: []string{"route_id"},
		Columns: []columnSchema{
			{Name: "route_id", Type: colInteger, NotNull: true},
			{Name: "route_key", Type: colText, NotNull: true},
			{Name: "operator_id", Type: colInteger, NotNull: true, References: "operators(operator_id)"},
			{Name: "mode", Type: colText},
			{Name: "route_short_name", Type: colText},
			{Name: "origin_text_en", Type: colText},
			{Name: "destination_text_en", Type: colText},
			{Name: "journey_time_minutes", Type: colInteger},
		},
	},

	"route_patterns": {
		PrimaryKey: []string{"pattern_id"},
		Columns: []columnSchema{
			{Name: "pattern_id", Type: colInteger, NotNull: true},
			{Name: "pattern_key", Type: colText},
			{Name: "route_id", Type: colInteger, NotNull: true, References: "routes(route_id)"},
			{Name: "route_seq", Type: colInteger},
			{Name: "direction_id", Type: colInteger},
			{Name: "service_type", Type: colText},
			{Name: "is_circular", Type: colInteger},
		},
	},

	"pattern_stops": {
		PrimaryKey: []string{"pattern_id", "seq"},
		Columns: []columnSchema{
			{Name: "pattern_id", Type: colInteger, NotNull: true, References: "route_patterns(pattern_id)"},
			{Name: "seq", Type: colInteger, NotNull: true},
			{Name: "place_id", Type: colInteger, NotNull: true, References: "places(place_id)"},
		},
	},

	"fare_products": {
		PrimaryKey: []string{"fare_product_id"},
		Columns: []columnSchema{
			{Name: "fare_product_id", Type: colInteger, NotNull: true},
			{Name: "name_en", Type: colText},
			{Name: "mode", Type: colText},
		},
	},

	"fare_rules": {
		PrimaryKey: []string{"fare_rule_id"},
		Columns: []columnSchema{
			{Name: "fare_rule_id", Type: colInteger, NotNull: true},
			{Name: "rule_key", Type: colText},
			{Name: "route_id", Type: colInteger, References: "routes(route_id)"},
			{Name: "pattern_id", Type: colInteger, References: "route_patterns(pattern_id)"},
			{Name: "origin_seq", Type: colInteger},
			{Name: "destination_seq", Type: colInteger},
		},
	},

	"fare_amounts": {
		PrimaryKey: []string{"fare_rule_id", "fare_product_id"},
		Columns: []columnSchema{
			{Name: "fare_rule_id", Type: colInteger, NotNull: true, References: "fare_rules(fare_rule_id)"},
			{Name: "fare_product_id", Type: colInteger, NotNull: true, References: "fare_products(fare_product_id)"},
			{Name: "amount_cents", Type: colInteger, NotNull: true},
			{Name: "is_default", Type: colInteger},
		},
	},

	"service_calendars": {
		PrimaryKey: []string{"service_id"},
		Columns: []columnSchema{
			{Name: "service_id", Type: colText, NotNull: true},
			{Name: "monday", Type: colInteger},
			{Name: "tuesday", Type: colInteger},
			{Name: "wednesday", Type: colInteger},
			{Name: "thursday", Type: colInteger},
			{Name: "friday", Type: colInteger},
			{Name: "saturday", Type: colInteger},
			{Name: "sunday", Type: colInteger},
			{Name: "start_date", Type: colText},
			{Name: "end_date", Type: colText},
		},
	},

	"headway_trips": {
		PrimaryKey: []string{"trip_id"},
		Columns: []columnSchema{
			{Name: "trip_id", Type: colText, NotNull: true},
			{Name: "upstream_route_id", Type: colInteger, NotNull: true},
			{Name: "route_seq", Type: colInteger},
			{Name: "service_id", Type: colText, NotNull: true, References: "service_calendars(service_id)"},
		},
	},

	"headway_frequencies": {
		// No natural single-column key; uniqueness over the upstream key is a
		// validation concern, not a storage constraint.
		Columns: []columnSchema{
			{Name: "upstream_route_id", Type: colInteger, NotNull: true},
			{Name: "route_seq", Type: colInteger},
			{Name: "service_id", Type: colText, NotNull: true, References: "service_calendars(service_id)"},
			{Name: "start_time", Type: colText, NotNull: true},
			{Name: "end_time", Type: colText, NotNull: true},
			{Name: "headway_secs", Type: colInteger, NotNull: true},
			{Name: "sample_trip_id", Type: colText},
		},
	},

	"pattern_headways": {
		Columns: []columnSchema{
			{Name: "pattern_id", Type: colInteger, NotNull: true, References: "route_patterns(pattern_id)"},
			{Name: "service_id", Type: colText, NotNull: true, References: "service_calendars(service_id)"},
			{Name: "start_time", Type: colText, NotNull: true},
			{Name: "end_time", Type: colText, NotNull: true},
			{Name: "headway_secs", Type: colInteger, NotNull: true},
			{Name: "sample_trip_id", Type: colText},
		},
	},

	"meta": {
		PrimaryKey: []string{"meta_id"},
		Check:      "meta_id = 1",
		Columns: []columnSchema{
			{Name: "meta_id", Type: colInteger, NotNull: true},
			{Name: "schema_version", Type: colInteger, NotNull: true},
			{Name: "bundle_version", Type: colText, NotNull: true},
			{Name: "generated_at", Type: colText, NotNull: true},
			{Name: "source_versions_json", Type: colText},
			{Name: "notes", Type: colText},
		},
	},
}

var bundleIndexes = []string{
	"CREATE INDEX idx_route_patterns_route ON route_patterns(route_id, route_seq)",
	"CREATE INDEX idx_pattern_stops_place ON pattern_stops(place_id)",
	"CREATE INDEX idx_fare_rules_route ON fare_rules(route_id, origin_seq, destination_seq)",
	"CREATE INDEX idx_headway_frequencies_route ON headway_frequencies(upstream_route_id, route_seq)",
	"CREATE INDEX idx_pattern_headways_pattern ON pattern_headways(pattern_id, service_id)",
}

func (s tableSchema) columnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

func (s tableSchema) column(name string) (columnSchema, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return columnSchema{}, false
}

func createTableSQL(name string, schema tableSchema) string {
	var fragments []string
	for _, c := range schema.Columns {
		f := c.Name + " " + string(c.Type)
		if c.NotNull {
			f += " NOT NULL"
		}
		if c.References != "" {
			f += " REFERENCES " + c.References
		}
		fragments = append(fragments, f)
	}
	if len(schema.PrimaryKey) > 0 {
		fragments = append(fragments, "PRIMARY KEY ("+strings.Join(schema.PrimaryKey, ", ")+")")
	}
	if schema.Check != "" {
		fragments = append(fragments, "CHECK ("+schema.Check+")")
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", name, strings.Join(fragments, ",\n  "))
}

// canonicalDDL renders the full bundle schema. The rendering is deterministic
// so its hash can be recorded in build metadata.
func canonicalDDL() string {
	var b strings.Builder
	for _, table := range bundleTableOrder {
		b.WriteString(createTableSQL(table, bundleSchema[table]))
		b.WriteString(";\n\n")
	}
	for _, idx := range bundleIndexes {
		b.WriteString(idx)
		b.WriteString(";\n")
	}
	return b.String()
}

func canonicalDDLSHA256() string {
	sum := sha256.Sum256([]byte(canonicalDDL()))
	return hex.EncodeToString(sum[:])
}

// appViewDDL is the schema of the derived app bundle. It exposes
// fare_segments and deliberately has no fare_rules or fare_amounts.
const appViewDDL = `
CREATE TABLE operators (
  operator_id INTEGER NOT NULL,
  operator_code TEXT NOT NULL,
  name_en TEXT,
  name_tc TEXT,
  name_sc TEXT,
  PRIMARY KEY (operator_id)
);

CREATE TABLE places (
  place_id INTEGER NOT NULL,
  place_type TEXT,
  name_en TEXT,
  name_tc TEXT,
  name_sc TEXT,
  lat_e7 INTEGER,
  lon_e7 INTEGER,
  parent_place_id INTEGER REFERENCES places(place_id),
  PRIMARY KEY (place_id)
);

CREATE TABLE routes (
  route_id INTEGER NOT NULL,
  operator_id INTEGER NOT NULL REFERENCES operators(operator_id),
  mode TEXT,
  route_short_name TEXT,
  origin_text_en TEXT,
  destination_text_en TEXT,
  journey_time_minutes INTEGER,
  PRIMARY KEY (route_id)
);

CREATE TABLE route_patterns (
  pattern_id INTEGER NOT NULL,
  route_id INTEGER NOT NULL REFERENCES routes(route_id),
  route_seq INTEGER,
  direction_id INTEGER,
  service_type TEXT,
  is_circular INTEGER,
  PRIMARY KEY (pattern_id)
);

CREATE TABLE pattern_stops (
  pattern_id INTEGER NOT NULL REFERENCES route_patterns(pattern_id),
  seq INTEGER NOT NULL,
  place_id INTEGER NOT NULL REFERENCES places(place_id),
  PRIMARY KEY (pattern_id, seq)
);

CREATE TABLE fare_products (
  fare_product_id INTEGER NOT NULL,
  name_en TEXT,
  mode TEXT,
  PRIMARY KEY (fare_product_id)
);

CREATE TABLE fare_segments (
  route_id INTEGER NOT NULL REFERENCES routes(route_id),
  fare_product_id INTEGER NOT NULL REFERENCES fare_products(fare_product_id),
  origin_seq INTEGER NOT NULL,
  dest_from_seq INTEGER NOT NULL,
  dest_to_seq INTEGER NOT NULL,
  amount_cents INTEGER NOT NULL,
  is_default INTEGER NOT NULL,
  PRIMARY KEY (route_id, fare_product_id, origin_seq, dest_from_seq)
);

CREATE TABLE pattern_headways (
  pattern_id INTEGER NOT NULL REFERENCES route_patterns(pattern_id),
  service_id TEXT NOT NULL,
  start_time TEXT NOT NULL,
  end_time TEXT NOT NULL,
  headway_secs INTEGER NOT NULL,
  sample_trip_id TEXT
);

CREATE TABLE meta (
  meta_id INTEGER NOT NULL,
  schema_version INTEGER NOT NULL,
  bundle_version TEXT NOT NULL,
  generated_at TEXT NOT NULL,
  notes TEXT,
  PRIMARY KEY (meta_id),
  CHECK (meta_id = 1)
);
`
