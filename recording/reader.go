package recording

import (
	"database/sql"
	"fmt"
)

// A Reader inspects a recording database written by a Recorder.
type Reader interface {
	// ListTables returns the names of all tables in the database.
	ListTables() ([]string, error)

	// CountRows returns the number of rows in a table.
	CountRows(tableName string) (int, error)

	// Close closes the reader.
	Close() error
}

// NewReader creates a Reader on the database at the given path.
func NewReader(path string) Reader {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		panic(err)
	}

	return &sqliteReader{DB: db}
}

// NewReaderWithDB creates a Reader on an existing database connection.
func NewReaderWithDB(db *sql.DB) Reader {
	return &sqliteReader{DB: db}
}

type sqliteReader struct {
	*sql.DB
}

func (r *sqliteReader) ListTables() ([]string, error) {
	rows, err := r.Query(
		"SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

func (r *sqliteReader) CountRows(tableName string) (int, error) {
	var count int

	err := r.QueryRow(
		fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
