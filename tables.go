package transitbundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Table is an immutable in-memory snapshot of one canonical relation.
// Cells are stored as text; the empty string means NULL, matching how the
// upstream columnar files encode absent values.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string

	colIndex map[string]int
}

func NewTable(name string, columns []string, rows [][]string) *Table {
	t := &Table{Name: name, Columns: columns, Rows: rows}
	t.colIndex = make(map[string]int, len(columns))
	for i, c := range columns {
		t.colIndex[c] = i
	}
	return t
}

// Col returns the index of a column, or -1 if the table does not have it.
func (t *Table) Col(name string) int {
	if i, ok := t.colIndex[name]; ok {
		return i
	}
	return -1
}

func (t *Table) HasColumn(name string) bool { return t.Col(name) >= 0 }

// Get returns the cell at (row, column name); "" for NULL or unknown column.
func (t *Table) Get(row int, name string) string {
	i := t.Col(name)
	if i < 0 {
		return ""
	}
	return t.Rows[row][i]
}

func (t *Table) NumRows() int { return len(t.Rows) }

// cellInt64 parses a cell as an integer. The second return is false for NULL.
func cellInt64(cell string) (int64, bool, error) {
	if cell == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(cell, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func cellFloat64(cell string) (float64, bool, error) {
	if cell == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// TableStat is the companion metadata upstream emits for each table file.
type TableStat struct {
	Rows         int    `json:"rows"`
	SHA256       string `json:"sha256"`
	SchemaSHA256 string `json:"schema_sha256,omitempty"`
}

type Manifest struct {
	SourceID string               `json:"source_id"`
	Version  string               `json:"version"`
	Tables   map[string]TableStat `json:"tables"`
}

// Dataset is the already-normalized input for one (source, version) pair:
// canonical tables plus the side-channel mapping and unresolved tables.
type Dataset struct {
	Dir        string
	Manifest   *Manifest
	Tables     map[string]*Table
	Mappings   map[string]*Table
	Unresolved map[string]*Table
}

func (d *Dataset) SourceID() string {
	if d.Manifest != nil && d.Manifest.SourceID != "" {
		return d.Manifest.SourceID
	}
	return filepath.Base(d.Dir)
}

func (d *Dataset) Version() string {
	if d.Manifest != nil {
		return d.Manifest.Version
	}
	return ""
}

// LoadDataset reads a dataset directory:
//
//	<dir>/manifest.json        optional companion metadata
//	<dir>/tables/<name>.csv    canonical tables
//	<dir>/mappings/<name>.csv  source-identity mapping tables
//	<dir>/unresolved/<name>.csv
//
// When a manifest is present, row counts and content hashes are verified
// against it; a mismatch is an input-data error.
func LoadDataset(dir string) (*Dataset, error) {
	ds := &Dataset{
		Dir:        dir,
		Tables:     make(map[string]*Table),
		Mappings:   make(map[string]*Table),
		Unresolved: make(map[string]*Table),
	}

	manifestPath := filepath.Join(dir, "manifest.json")
	if raw, err := os.ReadFile(manifestPath); err == nil {
		var m Manifest
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
		}
		ds.Manifest = &m
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := loadTableDir(filepath.Join(dir, "tables"), ds.Tables, ds.Manifest); err != nil {
		return nil, err
	}
	if len(ds.Tables) == 0 {
		return nil, fmt.Errorf("no tables found under %s", filepath.Join(dir, "tables"))
	}
	if err := loadTableDir(filepath.Join(dir, "mappings"), ds.Mappings, nil); err != nil {
		return nil, err
	}
	if err := loadTableDir(filepath.Join(dir, "unresolved"), ds.Unresolved, nil); err != nil {
		return nil, err
	}

	slog.Info(fmt.Sprintf("Loaded dataset %s (%d tables, %d mappings, %d unresolved)",
		dir, len(ds.Tables), len(ds.Mappings), len(ds.Unresolved)))
	return ds, nil
}

func loadTableDir(dir string, into map[string]*Table, manifest *Manifest) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		table := strings.TrimSuffix(name, ".csv")
		path := filepath.Join(dir, name)

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		t, err := parseTableCSV(table, raw)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if manifest != nil {
			if stat, ok := manifest.Tables[table]; ok {
				if stat.Rows != t.NumRows() {
					return fmt.Errorf("%s: manifest declares %d rows, file has %d",
						path, stat.Rows, t.NumRows())
				}
				sum := sha256.Sum256(raw)
				if got := hex.EncodeToString(sum[:]); stat.SHA256 != "" && stat.SHA256 != got {
					return fmt.Errorf("%s: content hash %s does not match manifest %s",
						path, got, stat.SHA256)
				}
			}
		}

		into[table] = t
	}
	return nil
}

func parseTableCSV(name string, raw []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(raw))

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	seen := make(map[string]bool, len(header))
	for _, col := range header {
		if seen[col] {
			return nil, fmt.Errorf("duplicate column %q", col)
		}
		seen[col] = true
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	return NewTable(name, header, rows), nil
}

func sha256File(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
