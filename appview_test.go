package transitbundle

import (
	"testing"

	"crawshaw.io/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppViewBundle(t *testing.T, outDir string) string {
	t.Helper()

	canonical := testCanonicalDataset()
	// A second, cheaper product on rule 1 that is not the default; the app
	// view must ship the default product's amount.
	canonical.Tables["fare_products"] = testTable("fare_products",
		[]string{"fare_product_id", "name_en"},
		[]string{"1", "Adult Octopus"},
		[]string{"2", "Child Octopus"},
	)
	canonical.Tables["fare_amounts"] = testTable("fare_amounts",
		[]string{"fare_rule_id", "fare_product_id", "amount_cents", "is_default"},
		[]string{"1", "1", "500", "1"},
		[]string{"1", "2", "300", "0"},
		[]string{"2", "1", "500", "1"},
	)

	_, err := Commit([]*Dataset{canonical, testHeadwayDataset()},
		outDir+"/bundle.db", &CommitOpts{BundleVersion: "2026.08.1", Now: testCommitTime})
	require.NoError(t, err)

	require.NoError(t, BuildAppView(outDir+"/bundle.db", outDir+"/app.db", nil))
	return outDir + "/app.db"
}

func TestAppViewCompressesFares(t *testing.T) {
	outDir := testTempdir(t)
	appPath := testAppViewBundle(t, outDir)

	conn, err := sqlite.OpenConn(appPath, sqlite.SQLITE_OPEN_READONLY)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	// Destinations 2 and 3 share the default amount, so they collapse into
	// one segment.
	assert.EqualValues(t, 1, queryInt64(t, conn, "SELECT count(*) FROM fare_segments"))
	assert.EqualValues(t, 500, queryInt64(t, conn, `SELECT amount_cents FROM fare_segments
		WHERE route_id = 12 AND fare_product_id = 1 AND origin_seq = 1
			AND dest_from_seq = 2 AND dest_to_seq = 3`))
}

func TestAppViewHasNoRawFareTables(t *testing.T) {
	outDir := testTempdir(t)
	appPath := testAppViewBundle(t, outDir)

	conn, err := sqlite.OpenConn(appPath, sqlite.SQLITE_OPEN_READONLY)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	assert.EqualValues(t, 0, queryInt64(t, conn, `SELECT count(*) FROM sqlite_master
		WHERE type = 'table' AND name IN ('fare_rules', 'fare_amounts')`))
	assert.EqualValues(t, 1, queryInt64(t, conn, `SELECT count(*) FROM sqlite_master
		WHERE type = 'table' AND name = 'fare_segments'`))
}

func TestAppViewEncodesCoordinatesAsE7(t *testing.T) {
	outDir := testTempdir(t)
	appPath := testAppViewBundle(t, outDir)

	conn, err := sqlite.OpenConn(appPath, sqlite.SQLITE_OPEN_READONLY)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	assert.EqualValues(t, 222938000, queryInt64(t, conn,
		"SELECT lat_e7 FROM places WHERE place_id = 10"))
	assert.EqualValues(t, 1141694000, queryInt64(t, conn,
		"SELECT lon_e7 FROM places WHERE place_id = 10"))
}

func TestAppViewCarriesMetaAndHeadways(t *testing.T) {
	outDir := testTempdir(t)
	appPath := testAppViewBundle(t, outDir)

	conn, err := sqlite.OpenConn(appPath, sqlite.SQLITE_OPEN_READONLY)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	assert.Equal(t, "2026.08.1", queryText(t, conn, "SELECT bundle_version FROM meta WHERE meta_id = 1"))
	assert.Equal(t, "app view", queryText(t, conn, "SELECT notes FROM meta"))
	assert.EqualValues(t, SchemaVersion, queryInt64(t, conn, "PRAGMA user_version"))
	assert.EqualValues(t, 1, queryInt64(t, conn,
		"SELECT count(*) FROM pattern_headways WHERE pattern_id = 101"))
}
