package export

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kiesman99/demtile/pkg/tile"
)

// MBTilesVersion is written to the metadata table
const MBTilesVersion = "1.3"

// mbtiles is an MBTiles file opened for writing
type mbtiles struct {
	db     *sql.DB
	insert *sql.Stmt
}

func createMBTiles(path string, overwrite bool) (*mbtiles, error) {
	if overwrite {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	} else if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s already exists", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Writes are funnelled through one connection
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA synchronous=OFF",
		"PRAGMA journal_mode=MEMORY",
		"create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob);",
		"create table if not exists metadata (name text, value text);",
		"create unique index if not exists name on metadata (name);",
		"create unique index if not exists tile_index on tiles (zoom_level, tile_column, tile_row);",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare %s: %w", path, err)
		}
	}

	insert, err := db.Prepare("insert or replace into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?)")
	if err != nil {
		db.Close()
		return nil, err
	}

	return &mbtiles{db: db, insert: insert}, nil
}

func (m *mbtiles) putTile(t tile.Tile, data []byte) error {
	_, err := m.insert.Exec(t.Z, t.X, t.FlipY(), data)
	return err
}

func (m *mbtiles) putMetadata(items map[string]string) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	for name, value := range items {
		if _, err := tx.Exec("insert or replace into metadata (name, value) values (?, ?)", name, value); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (m *mbtiles) close() error {
	m.insert.Close()
	return m.db.Close()
}
