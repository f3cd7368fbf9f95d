package locator

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/chazu/transmute/classfile"

	_ "modernc.org/sqlite"
)

// ClassPath is a SQLite-backed repository of class files keyed by type name.
// It serves as the fallback ClassFileLocator for types no loader knows.
type ClassPath struct {
	db     *sql.DB
	dbPath string
}

// OpenClassPath opens (creating if needed) a class path database.
func OpenClassPath(dbPath string) (*ClassPath, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening class path: %w", err)
	}
	// Keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS classes (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &ClassPath{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (cp *ClassPath) Close() error {
	if cp.db != nil {
		return cp.db.Close()
	}
	return nil
}

// Put stores a class file, replacing any previous definition of the name.
// The bytes must decode to a class file declaring that name.
func (cp *ClassPath) Put(binary []byte) (string, error) {
	cf, err := classfile.Unmarshal(binary)
	if err != nil {
		return "", err
	}
	_, err = cp.db.Exec(
		"INSERT OR REPLACE INTO classes (name, data) VALUES (?, ?)",
		cf.Name, binary,
	)
	if err != nil {
		return "", fmt.Errorf("saving %s: %w", cf.Name, err)
	}
	return cf.Name, nil
}

// PutClassFile encodes and stores a class file.
func (cp *ClassPath) PutClassFile(cf *classfile.ClassFile) error {
	binary, err := classfile.Marshal(cf)
	if err != nil {
		return err
	}
	_, err = cp.Put(binary)
	return err
}

// Locate implements ClassFileLocator.
func (cp *ClassPath) Locate(name string) ([]byte, error) {
	var data []byte
	err := cp.db.QueryRow("SELECT data FROM classes WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("querying %s: %w", name, err)
	}
	return data, nil
}

// Names lists stored type names in order.
func (cp *ClassPath) Names() ([]string, error) {
	rows, err := cp.db.Query("SELECT name FROM classes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("listing classes: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes a stored class file. It reports whether one existed.
func (cp *ClassPath) Delete(name string) (bool, error) {
	res, err := cp.db.Exec("DELETE FROM classes WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("deleting %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
