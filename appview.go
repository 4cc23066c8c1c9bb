package transitbundle

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

type AppViewOpts struct {
	Config CommitConfig
}

// appViewCopies are the tables the app bundle takes from the canonical
// bundle as-is, apart from the places coordinate encoding.
var appViewCopies = []string{
	`INSERT INTO operators SELECT operator_id, operator_code, name_en, name_tc, name_sc
		FROM canon.operators ORDER BY operator_id`,
	`INSERT INTO places SELECT place_id, place_type, name_en, name_tc, name_sc,
		CAST(ROUND(lat * 1e7) AS INTEGER), CAST(ROUND(lon * 1e7) AS INTEGER), parent_place_id
		FROM canon.places ORDER BY place_id`,
	`INSERT INTO routes SELECT route_id, operator_id, mode, route_short_name,
		origin_text_en, destination_text_en, journey_time_minutes
		FROM canon.routes ORDER BY route_id`,
	`INSERT INTO route_patterns SELECT pattern_id, route_id, route_seq, direction_id,
		service_type, is_circular
		FROM canon.route_patterns ORDER BY pattern_id`,
	`INSERT INTO pattern_stops SELECT pattern_id, seq, place_id
		FROM canon.pattern_stops ORDER BY pattern_id, seq`,
	`INSERT INTO fare_products SELECT fare_product_id, name_en, mode
		FROM canon.fare_products ORDER BY fare_product_id`,
	`INSERT INTO pattern_headways SELECT pattern_id, service_id, start_time, end_time,
		headway_secs, sample_trip_id
		FROM canon.pattern_headways ORDER BY pattern_id, service_id, start_time, end_time`,
}

// BuildAppView derives the app-facing bundle from a canonical bundle.
//
// The app bundle carries compressed fare_segments instead of the raw
// fare_rules and fare_amounts tables, and integer e7 coordinates instead
// of floats. Like Commit it builds at a temp path and renames into place
// only after the integrity checks pass.
func BuildAppView(bundlePath string, outPath string, opts *AppViewOpts) error {
	if bundlePath == "" || outPath == "" {
		panic("Missing bundlePath or outPath")
	}
	if opts == nil {
		opts = &AppViewOpts{}
	}
	cfg := opts.Config
	if cfg.BatchRows == 0 {
		cfg = DefaultCommitConfig()
	}

	slog.Info(fmt.Sprintf("Building app view of %s at %s", bundlePath, outPath))

	tmpPath := outPath + ".tmp"
	removeBundleFiles(tmpPath)
	defer removeBundleFiles(tmpPath)

	db, err := sqlite.OpenConn(tmpPath, 0)
	if err != nil {
		return &CommitError{Step: "open", Err: err}
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	for _, pragma := range importPragmas {
		if err := sqlitex.ExecTransient(db, "PRAGMA "+pragma, sqlitexNoop); err != nil {
			return &CommitError{Step: "pragma " + pragma, Err: err}
		}
	}

	if err := sqlitex.ExecScript(db, appViewDDL); err != nil {
		return &CommitError{Step: "create schema", Err: err}
	}
	if err := sqlitex.ExecTransient(db,
		fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion), sqlitexNoop); err != nil {
		return &CommitError{Step: "pragma user_version", Err: err}
	}

	if err := sqlitex.Exec(db, "ATTACH ? AS canon", sqlitexNoop, bundlePath); err != nil {
		return &CommitError{Step: "attach", Err: err}
	}

	if err := sqlitex.Exec(db, "BEGIN", sqlitexNoop); err != nil {
		return &CommitError{Step: "begin", Err: err}
	}
	for _, query := range appViewCopies {
		if err := sqlitex.ExecTransient(db, query, sqlitexNoop); err != nil {
			return &CommitError{Step: "copy tables", Err: err}
		}
	}

	if err := buildFareSegmentTable(db); err != nil {
		return err
	}
	if err := copyAppMeta(db); err != nil {
		return err
	}

	if err := sqlitex.Exec(db, "COMMIT", sqlitexNoop); err != nil {
		return &CommitError{Step: "commit", Err: err}
	}
	if err := sqlitex.ExecTransient(db, "DETACH canon", sqlitexNoop); err != nil {
		return &CommitError{Step: "detach", Err: err}
	}

	if err := checkNoRawFareTables(db); err != nil {
		return err
	}
	if err := maintain(db, cfg); err != nil {
		return err
	}
	if err := runChecks(db); err != nil {
		return err
	}

	err = db.Close()
	db = nil
	if err != nil {
		return &CommitError{Step: "close", Err: err}
	}

	_ = os.Remove(tmpPath + "-wal")
	_ = os.Remove(tmpPath + "-shm")
	if err := os.Rename(tmpPath, outPath); err != nil {
		return &CommitError{Step: "rename", Err: err}
	}

	slog.Info(fmt.Sprintf("Wrote %s", outPath))
	return nil
}

// buildFareSegmentTable compresses the canonical per-destination fares
// into fare_segments. One representative product is chosen per fare rule
// (the default-flagged one, or the lowest product id), then consecutive
// destinations with the same amount collapse into one row.
func buildFareSegmentTable(db *sqlite.Conn) error {
	var amounts []RuleAmount
	err := sqlitex.Exec(db, `SELECT fare_rule_id, fare_product_id, amount_cents,
		COALESCE(is_default, 0) AS is_default FROM canon.fare_amounts`,
		func(stmt *sqlite.Stmt) error {
			amounts = append(amounts, RuleAmount{
				FareRuleID:    stmt.GetText("fare_rule_id"),
				FareProductID: stmt.GetText("fare_product_id"),
				Amount:        float64(stmt.GetInt64("amount_cents")),
				IsDefault:     stmt.GetInt64("is_default") != 0,
			})
			return nil
		})
	if err != nil {
		return &CommitError{Step: "read fare_amounts", Err: err}
	}
	chosen := ChooseDefaultAmounts(amounts)

	var entries []FareEntry
	err = sqlitex.Exec(db, `SELECT fare_rule_id, route_id, origin_seq, destination_seq
		FROM canon.fare_rules
		WHERE route_id IS NOT NULL AND origin_seq IS NOT NULL AND destination_seq IS NOT NULL`,
		func(stmt *sqlite.Stmt) error {
			amount, ok := chosen[stmt.GetText("fare_rule_id")]
			if !ok {
				return nil
			}
			entries = append(entries, FareEntry{
				RouteID:       stmt.GetText("route_id"),
				FareProductID: amount.FareProductID,
				OriginSeq:     stmt.GetInt64("origin_seq"),
				DestSeq:       stmt.GetInt64("destination_seq"),
				Amount:        amount.Amount,
			})
			return nil
		})
	if err != nil {
		return &CommitError{Step: "read fare_rules", Err: err}
	}

	segments := BuildFareSegments(entries)
	slog.Info(fmt.Sprintf("Compressed %d fare rule(s) to %d segment(s)",
		len(entries), len(segments)))

	stmt, err := db.Prepare(`INSERT INTO fare_segments
		(route_id, fare_product_id, origin_seq, dest_from_seq, dest_to_seq, amount_cents, is_default)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, 1)`)
	if err != nil {
		return &CommitError{Step: "fare_segments", Err: err}
	}
	for _, s := range segments {
		if err := stmt.Reset(); err != nil {
			return &CommitError{Step: "fare_segments", Err: err}
		}
		if err := stmt.ClearBindings(); err != nil {
			return &CommitError{Step: "fare_segments", Err: err}
		}
		routeID, err := strconv.ParseInt(s.RouteID, 10, 64)
		if err != nil {
			return commitErrf("fare_segments", "bad route_id %q: %v", s.RouteID, err)
		}
		productID, err := strconv.ParseInt(s.FareProductID, 10, 64)
		if err != nil {
			return commitErrf("fare_segments", "bad fare_product_id %q: %v", s.FareProductID, err)
		}
		stmt.BindInt64(1, routeID)
		stmt.BindInt64(2, productID)
		stmt.BindInt64(3, s.OriginSeq)
		stmt.BindInt64(4, s.DestFromSeq)
		stmt.BindInt64(5, s.DestToSeq)
		stmt.BindInt64(6, int64(s.Amount))
		if _, err := stmt.Step(); err != nil {
			return &CommitError{Step: "fare_segments", Err: err}
		}
	}
	return nil
}

func copyAppMeta(db *sqlite.Conn) error {
	err := sqlitex.ExecTransient(db, `INSERT INTO meta
		(meta_id, schema_version, bundle_version, generated_at, notes)
		SELECT 1, schema_version, bundle_version, generated_at, 'app view'
		FROM canon.meta WHERE meta_id = 1`, sqlitexNoop)
	if err != nil {
		return &CommitError{Step: "write meta", Err: err}
	}
	return nil
}

// checkNoRawFareTables asserts the app bundle ships no raw fare data.
// fare_segments is the only fare surface the app is allowed to see.
func checkNoRawFareTables(db *sqlite.Conn) error {
	var leaked []string
	err := sqlitex.Exec(db, `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name IN ('fare_rules', 'fare_amounts')`,
		func(stmt *sqlite.Stmt) error {
			leaked = append(leaked, stmt.ColumnText(0))
			return nil
		})
	if err != nil {
		return &CommitError{Step: "fare table check", Err: err}
	}
	if len(leaked) > 0 {
		return commitErrf("fare table check", "raw fare table(s) present: %s",
			strings.Join(leaked, ", "))
	}
	return nil
}
