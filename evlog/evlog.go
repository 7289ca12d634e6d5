// Package evlog persists controller events into a SQLite database so that a
// run can be inspected after the fact: every dispatch, completion, state
// change, recovery pass, and power transition becomes one row.
package evlog

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// Row is the flattened shape of one recorded event.
type Row struct {
	WhenNs     int64
	Controller string
	Kind       string
	Tag        int
	Detail     string
}

const tableName = "events"

// A Recorder buffers event rows and writes them into a SQLite database in
// batches.
type Recorder struct {
	db   *sql.DB
	path string

	mu        sync.Mutex
	rows      []Row
	batchSize int
}

// NewRecorder creates a recorder backed by a fresh database file. An empty
// path picks a unique name. Buffered rows are flushed at exit.
func NewRecorder(path string) *Recorder {
	if path == "" {
		path = "ufshost_events_" + xid.New().String()
	}
	filename := path + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	fmt.Fprintf(os.Stderr, "Database created for event recording: %s\n", filename)

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	r := &Recorder{
		db:        db,
		path:      filename,
		batchSize: 10000,
	}
	r.createTable()

	atexit.Register(func() { r.Flush() })

	return r
}

// Path returns the database file the recorder writes to.
func (r *Recorder) Path() string {
	return r.path
}

func (r *Recorder) createTable() {
	fields := strings.Join(structs.Names(Row{}), ", \n\t")
	r.mustExecute(`CREATE TABLE ` + tableName + ` (` + "\n\t" + fields + "\n" + `);`)
}

// Insert buffers one row, flushing when the batch fills up.
func (r *Recorder) Insert(row Row) {
	r.mu.Lock()
	r.rows = append(r.rows, row)
	full := len(r.rows) >= r.batchSize
	r.mu.Unlock()

	if full {
		r.Flush()
	}
}

// Flush writes the buffered rows in one transaction.
func (r *Recorder) Flush() {
	r.mu.Lock()
	rows := r.rows
	r.rows = nil
	r.mu.Unlock()

	if len(rows) == 0 {
		return
	}

	r.mustExecute("BEGIN TRANSACTION")
	defer r.mustExecute("COMMIT TRANSACTION")

	placeholders := make([]string, len(structs.Names(Row{})))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	stmt, err := r.db.Prepare(
		"INSERT INTO " + tableName + " VALUES (" +
			strings.Join(placeholders, ", ") + ")")
	if err != nil {
		panic(err)
	}
	defer stmt.Close()

	for _, row := range rows {
		v := []any{}
		value := reflect.ValueOf(row)
		for i := 0; i < value.NumField(); i++ {
			v = append(v, value.Field(i).Interface())
		}
		if _, err := stmt.Exec(v...); err != nil {
			panic(err)
		}
	}
}

// RowCount returns how many rows have been written out to the database.
// Buffered rows do not count until a flush.
func (r *Recorder) RowCount() int {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM " + tableName).Scan(&n)
	if err != nil {
		panic(err)
	}
	return n
}

// Close flushes and closes the database.
func (r *Recorder) Close() {
	r.Flush()
	if err := r.db.Close(); err != nil {
		panic(err)
	}
}

func (r *Recorder) mustExecute(query string) sql.Result {
	res, err := r.db.Exec(query)
	if err != nil {
		fmt.Printf("Failed to execute: %s\n", query)
		panic(err)
	}
	return res
}
