package core

import (
	"database/sql"
	"testing"

	"github.com/marquee-cinema/marquee/engine/db"
)

// NewTestDB creates a test database with the core schema applied.
func NewTestDB(t *testing.T) *sql.DB {
	d := db.OpenTest(t)
	db.MustMigrate(d, Migration)
	return d
}

// SeedRoom inserts a room with the given id for tests.
func SeedRoom(t *testing.T, d *sql.DB, id int64, name string) {
	t.Helper()
	if _, err := d.Exec("INSERT INTO rooms (id, name, format, capacity) VALUES ($1, $2, '2D', 100)", id, name); err != nil {
		t.Fatal(err)
	}
}

// SeedMovie inserts a movie with the given id for tests.
func SeedMovie(t *testing.T, d *sql.DB, id int64, title string, minutes int) {
	t.Helper()
	if _, err := d.Exec("INSERT INTO movies (id, title, duration_minutes, language) VALUES ($1, $2, $3, 'en')", id, title, minutes); err != nil {
		t.Fatal(err)
	}
}
