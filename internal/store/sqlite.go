package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stwalsh4118/landb/internal/config"
	"github.com/stwalsh4118/landb/internal/database"
	"github.com/stwalsh4118/landb/internal/models"
)

// sqliteStore keeps the snapshot in a modernc sqlite database.
type sqliteStore struct {
	db *database.SQLite
	d  dialect
}

// NewSQLiteStore wraps an open sqlite database. The Info table is created
// up front unless the database is read-only.
func NewSQLiteStore(ctx context.Context, db *database.SQLite) (Store, error) {
	s := &sqliteStore{db: db, d: sqliteDialect}
	if !db.ReadOnly {
		if _, err := db.DB.ExecContext(ctx, createInfoStatement); err != nil {
			return nil, fmt.Errorf("failed to create info table: %w", err)
		}
	}
	return s, nil
}

func (s *sqliteStore) Driver() string { return config.DriverSQLite }

func (s *sqliteStore) ReadOnly() bool { return s.db.ReadOnly }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *sqliteStore) Exists(ctx context.Context) (bool, error) {
	var count int
	err := s.db.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", landTable).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check land table: %w", err)
	}
	return count > 0, nil
}

func (s *sqliteStore) ReplaceLands(ctx context.Context, lands []models.Land, info map[string]string) (err error) {
	if s.db.ReadOnly {
		return ErrReadOnly
	}

	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range createLandStatements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to recreate land table: %w", err)
		}
	}

	insert, err := tx.PrepareContext(ctx, s.d.insertLandSQL())
	if err != nil {
		return fmt.Errorf("failed to prepare land insert: %w", err)
	}
	defer insert.Close()

	for _, land := range lands {
		values, verr := landValues(land)
		if verr != nil {
			err = verr
			return err
		}
		if _, err = insert.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("failed to insert land token %d: %w", land.TokenID, err)
		}
	}

	for name, value := range info {
		if _, err = tx.ExecContext(ctx, s.d.upsertInfoSQL(), name, value); err != nil {
			return fmt.Errorf("failed to set info %s: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit land replacement: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetInfo(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.db.DB.QueryRowContext(ctx, s.d.selectInfoSQL(), name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read info %s: %w", name, err)
	}
	return value, true, nil
}

func (s *sqliteStore) SetInfo(ctx context.Context, name, value string) error {
	if s.db.ReadOnly {
		return ErrReadOnly
	}
	if _, err := s.db.DB.ExecContext(ctx, s.d.upsertInfoSQL(), name, value); err != nil {
		return fmt.Errorf("failed to set info %s: %w", name, err)
	}
	return nil
}

func (s *sqliteStore) FindLands(ctx context.Context, filter LandFilter) ([]models.Land, error) {
	query, args := s.d.buildLandQuery(filter)
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lands: %w", err)
	}
	defer rows.Close()

	lands := []models.Land{}
	for rows.Next() {
		land, err := scanLand(rows)
		if err != nil {
			return nil, err
		}
		lands = append(lands, land)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating land rows: %w", err)
	}
	return lands, nil
}

func (s *sqliteStore) CountLands(ctx context.Context, owner string, groupByIsland bool) ([]models.LandCount, error) {
	query, args := s.d.buildCountQuery(owner, groupByIsland)
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count lands: %w", err)
	}
	defer rows.Close()

	counts := []models.LandCount{}
	for rows.Next() {
		c, err := scanCount(rows, groupByIsland)
		if err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating count rows: %w", err)
	}
	return counts, nil
}
