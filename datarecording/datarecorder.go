// Package datarecording stores run and trace records into SQLite databases.
//
// A record is a flat struct. Each exported field becomes a column. The column
// name comes from the `db` tag, falling back to the field name, and a tag
// option of "index" adds an index on the column:
//
//	type RunRecord struct {
//		Run    int    `db:"run,index"`
//		Status uint32 `db:"status"`
//		Cycles uint64 `db:"cycles"`
//		Debug  string `db:"-"`
//	}
package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/fatih/structs"
	"github.com/juju/errors"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DataRecorder is a backend that can record and store data
type DataRecorder interface {
	// CreateTable creates a new table whose columns are the fields of the
	// sample entry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData writes an entry into a table that already exists. Entries are
	// buffered until the next flush.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all tables, sorted.
	ListTables() []string

	// Flush writes all the buffered entries into the database
	Flush()

	// Close flushes and closes the database.
	Close() error
}

const (
	tagName          = "db"
	defaultBatchSize = 100000
)

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// New creates a new DataRecorder that writes to path.sqlite3. If path is
// empty, a unique name is generated.
func New(path string) DataRecorder {
	w := newWriter(nil)
	w.dbName = path
	w.open()

	return w
}

// NewWithDB creates a new DataRecorder with a given database.
func NewWithDB(db *sql.DB) DataRecorder {
	return newWriter(db)
}

func newWriter(db *sql.DB) *sqliteWriter {
	w := &sqliteWriter{
		DB:        db,
		batchSize: defaultBatchSize,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { w.Flush() })

	return w
}

type column struct {
	field   string
	name    string
	sqlType string
	indexed bool
}

type table struct {
	name       string
	structType reflect.Type
	columns    []column
	entries    []any
}

func (t *table) insertSQL() string {
	names := make([]string, len(t.columns))
	marks := make([]string, len(t.columns))

	for i, c := range t.columns {
		names[i] = quote(c.name)
		marks[i] = "?"
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(t.name), strings.Join(names, ", "), strings.Join(marks, ", "))
}

func (t *table) row(entry any) []any {
	v := reflect.ValueOf(entry)
	row := make([]any, len(t.columns))

	for i, c := range t.columns {
		row[i] = columnValue(v.FieldByName(c.field))
	}

	return row
}

// sqliteWriter is the writer that writes data into SQLite database
type sqliteWriter struct {
	*sql.DB

	dbName     string
	tables     map[string]*table
	batchSize  int
	entryCount int
	closed     bool
}

func (t *sqliteWriter) open() {
	if t.dbName == "" {
		t.dbName = "axifuzz_" + xid.New().String()
	}

	filename := t.dbName + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		panic(errors.AlreadyExistsf("database %s", filename))
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(errors.Annotatef(err, "opening %s", filename))
	}

	t.DB = db
}

func sqlType(kind reflect.Kind) (string, bool) {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64:
		return "INTEGER", true
	case reflect.Float32, reflect.Float64:
		return "REAL", true
	case reflect.String:
		return "TEXT", true
	default:
		return "", false
	}
}

// columnValue converts a field into a value the SQLite driver accepts.
// Unsigned 64-bit values keep their bit pattern in a signed column.
func columnValue(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64:
		return int64(v.Uint())
	default:
		return v.Interface()
	}
}

func schemaOf(tableName string, sampleEntry any) (*table, error) {
	if !identifierRE.MatchString(tableName) {
		return nil, errors.NotValidf("table name %q", tableName)
	}

	st := reflect.TypeOf(sampleEntry)
	if st == nil || st.Kind() != reflect.Struct {
		return nil, errors.NotValidf("entry of type %T", sampleEntry)
	}

	s := structs.New(sampleEntry)
	s.TagName = tagName

	tbl := &table{name: tableName, structType: st}
	seen := make(map[string]bool)

	for _, f := range s.Fields() {
		typ, ok := sqlType(f.Kind())
		if !ok {
			return nil, errors.NotSupportedf("field %s of kind %s", f.Name(), f.Kind())
		}

		c := column{field: f.Name(), name: f.Name(), sqlType: typ}

		opts := strings.Split(f.Tag(tagName), ",")
		if opts[0] != "" {
			c.name = opts[0]
		}

		for _, o := range opts[1:] {
			if o == "index" {
				c.indexed = true
			}
		}

		if !identifierRE.MatchString(c.name) {
			return nil, errors.NotValidf("column name %q", c.name)
		}

		if seen[c.name] {
			return nil, errors.AlreadyExistsf("column %s in table %s", c.name, tableName)
		}

		seen[c.name] = true
		tbl.columns = append(tbl.columns, c)
	}

	if len(tbl.columns) == 0 {
		return nil, errors.NotValidf("entry of type %T without columns", sampleEntry)
	}

	return tbl, nil
}

func quote(identifier string) string {
	return `"` + identifier + `"`
}

func (t *sqliteWriter) CreateTable(tableName string, sampleEntry any) {
	if _, exists := t.tables[tableName]; exists {
		panic(errors.AlreadyExistsf("table %s", tableName))
	}

	tbl, err := schemaOf(tableName, sampleEntry)
	if err != nil {
		panic(err)
	}

	defs := make([]string, len(tbl.columns))
	for i, c := range tbl.columns {
		defs[i] = quote(c.name) + " " + c.sqlType
	}

	t.mustExecute(fmt.Sprintf("CREATE TABLE %s (\n\t%s\n);",
		quote(tableName), strings.Join(defs, ",\n\t")))

	for _, c := range tbl.columns {
		if !c.indexed {
			continue
		}

		t.mustExecute(fmt.Sprintf("CREATE INDEX %s ON %s (%s);",
			quote(tableName+"_"+c.name), quote(tableName), quote(c.name)))
	}

	t.tables[tableName] = tbl
}

func (t *sqliteWriter) InsertData(tableName string, entry any) {
	table, exists := t.tables[tableName]
	if !exists {
		panic(errors.NotFoundf("table %s", tableName))
	}

	if reflect.TypeOf(entry) != table.structType {
		panic(errors.NotValidf("entry of type %T for table %s", entry, tableName))
	}

	table.entries = append(table.entries, entry)

	t.entryCount++
	if t.entryCount >= t.batchSize {
		t.Flush()
	}
}

func (t *sqliteWriter) ListTables() []string {
	tables := make([]string, 0, len(t.tables))
	for table := range t.tables {
		tables = append(tables, table)
	}

	sort.Strings(tables)

	return tables
}

// Flush writes the buffered entries of all tables in one transaction.
func (t *sqliteWriter) Flush() {
	if t.entryCount == 0 || t.closed {
		return
	}

	if err := t.flushTx(); err != nil {
		panic(err)
	}

	t.entryCount = 0
}

func (t *sqliteWriter) flushTx() error {
	tx, err := t.Begin()
	if err != nil {
		return errors.Annotate(err, "beginning flush")
	}

	for _, name := range t.ListTables() {
		table := t.tables[name]
		if len(table.entries) == 0 {
			continue
		}

		if err := insertAll(tx, table); err != nil {
			_ = tx.Rollback()
			return errors.Annotatef(err, "flushing table %s", name)
		}

		table.entries = nil
	}

	return errors.Annotate(tx.Commit(), "committing flush")
}

func insertAll(tx *sql.Tx, table *table) error {
	stmt, err := tx.Prepare(table.insertSQL())
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range table.entries {
		if _, err := stmt.Exec(table.row(entry)...); err != nil {
			return err
		}
	}

	return nil
}

func (t *sqliteWriter) Close() error {
	if t.closed {
		return nil
	}

	t.Flush()
	t.closed = true

	return t.DB.Close()
}

func (t *sqliteWriter) mustExecute(query string) sql.Result {
	res, err := t.Exec(query)
	if err != nil {
		panic(errors.Annotatef(err, "executing %q", query))
	}

	return res
}
