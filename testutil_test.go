package transitbundle

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func testTempdir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "")
	require.NoError(t, err)
	t.Cleanup(func() {
		if t.Failed() {
			fmt.Println("Preserving tempdir after failed test", dir)
		} else {
			_ = os.RemoveAll(dir)
		}
	})
	return dir
}

func testTable(name string, columns []string, rows ...[]string) *Table {
	return NewTable(name, columns, rows)
}

// testCanonicalDataset is a small internally consistent routes+fares
// dataset: one operator, three stops, one route with one three-stop
// pattern, and per-destination fares from the origin.
func testCanonicalDataset() *Dataset {
	return &Dataset{
		Dir:      "routes_fares_xml",
		Manifest: &Manifest{SourceID: "routes_fares_xml", Version: "2026.08"},
		Tables: map[string]*Table{
			"operators": testTable("operators",
				[]string{"operator_id", "operator_code", "name_en"},
				[]string{"1", "KMB", "Kowloon Motor Bus"},
			),
			"places": testTable("places",
				[]string{"place_id", "place_key", "name_en", "lat", "lon"},
				[]string{"10", "ST-010", "Star Ferry", "22.2938", "114.1694"},
				[]string{"11", "ST-011", "Central", "22.2820", "114.1588"},
				[]string{"12", "ST-012", "Admiralty", "22.2790", "114.1650"},
			),
			"routes": testTable("routes",
				[]string{"route_id", "route_key", "operator_id", "mode", "route_short_name"},
				[]string{"12", "KMB-1A-O", "1", "bus", "1A"},
			),
			"route_patterns": testTable("route_patterns",
				[]string{"pattern_id", "pattern_key", "route_id", "route_seq"},
				[]string{"101", "KMB-1A-O-1", "12", "1"},
			),
			"pattern_stops": testTable("pattern_stops",
				[]string{"pattern_id", "seq", "place_id"},
				[]string{"101", "1", "10"},
				[]string{"101", "2", "11"},
				[]string{"101", "3", "12"},
			),
			"fare_products": testTable("fare_products",
				[]string{"fare_product_id", "name_en"},
				[]string{"1", "Adult Octopus"},
			),
			"fare_rules": testTable("fare_rules",
				[]string{"fare_rule_id", "rule_key", "route_id", "origin_seq", "destination_seq"},
				[]string{"1", "12-1-2", "12", "1", "2"},
				[]string{"2", "12-1-3", "12", "1", "3"},
			),
			"fare_amounts": testTable("fare_amounts",
				[]string{"fare_rule_id", "fare_product_id", "amount_cents", "is_default"},
				[]string{"1", "1", "500", "1"},
				[]string{"2", "1", "500", "1"},
			),
		},
		Mappings: map[string]*Table{
			"map_route_source": testTable("map_route_source",
				[]string{"source", "mode", "source_route_id", "source_file", "source_row", "route_id", "route_key"},
				[]string{"routes_fares_xml", "bus", "0930", "ROUTE_BUS.xml", "4", "12", "KMB-1A-O"},
			),
		},
		Unresolved: map[string]*Table{},
	}
}

// testHeadwayDataset pairs with testCanonicalDataset: its frequencies
// reference upstream route 930, which the mapping above ties to route 12.
func testHeadwayDataset() *Dataset {
	return &Dataset{
		Dir:      "pt_headway_gtfs",
		Manifest: &Manifest{SourceID: "pt_headway_gtfs", Version: "20260801"},
		Tables: map[string]*Table{
			"service_calendars": testTable("service_calendars",
				[]string{"service_id", "monday", "sunday"},
				[]string{"WD", "1", "0"},
			),
			"headway_trips": testTable("headway_trips",
				[]string{"trip_id", "upstream_route_id", "route_seq", "service_id"},
				[]string{"T1", "930", "1", "WD"},
			),
			"headway_frequencies": testTable("headway_frequencies",
				[]string{"upstream_route_id", "route_seq", "service_id", "start_time", "end_time", "headway_secs", "sample_trip_id"},
				[]string{"930", "1", "WD", "07:00:00", "09:00:00", "300", "T1"},
			),
		},
		Mappings:   map[string]*Table{},
		Unresolved: map[string]*Table{},
	}
}
