package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/landb/internal/config"
	"github.com/stwalsh4118/landb/internal/database"
	"github.com/stwalsh4118/landb/internal/models"
)

// postgresStore keeps the snapshot in PostgreSQL through a pgx pool.
// DDL is transactional in postgres, so readers never see a half-built table.
type postgresStore struct {
	db       *database.Postgres
	d        dialect
	readOnly bool
}

// NewPostgresStore wraps an open pool. The Info table is created up front
// unless readOnly is set.
func NewPostgresStore(ctx context.Context, db *database.Postgres, readOnly bool) (Store, error) {
	s := &postgresStore{db: db, d: postgresDialect, readOnly: readOnly}
	if !readOnly {
		if _, err := db.Pool.Exec(ctx, createInfoStatement); err != nil {
			return nil, fmt.Errorf("failed to create info table: %w", err)
		}
	}
	return s, nil
}

func (s *postgresStore) Driver() string { return config.DriverPostgres }

func (s *postgresStore) ReadOnly() bool { return s.readOnly }

func (s *postgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *postgresStore) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, landTable).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check land table: %w", err)
	}
	return exists, nil
}

func (s *postgresStore) ReplaceLands(ctx context.Context, lands []models.Land, info map[string]string) (err error) {
	if s.readOnly {
		return ErrReadOnly
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, stmt := range createLandStatements {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to recreate land table: %w", err)
		}
	}

	rows := make([][]interface{}, 0, len(lands))
	for _, land := range lands {
		values, verr := landValues(land)
		if verr != nil {
			err = verr
			return err
		}
		rows = append(rows, values)
	}

	if _, err = tx.CopyFrom(ctx, pgx.Identifier{landTable}, landColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("failed to copy lands: %w", err)
	}

	for name, value := range info {
		if _, err = tx.Exec(ctx, s.d.upsertInfoSQL(), name, value); err != nil {
			return fmt.Errorf("failed to set info %s: %w", name, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit land replacement: %w", err)
	}
	return nil
}

func (s *postgresStore) GetInfo(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.db.Pool.QueryRow(ctx, s.d.selectInfoSQL(), name).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read info %s: %w", name, err)
	}
	return value, true, nil
}

func (s *postgresStore) SetInfo(ctx context.Context, name, value string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if _, err := s.db.Pool.Exec(ctx, s.d.upsertInfoSQL(), name, value); err != nil {
		return fmt.Errorf("failed to set info %s: %w", name, err)
	}
	return nil
}

func (s *postgresStore) FindLands(ctx context.Context, filter LandFilter) ([]models.Land, error) {
	query, args := s.d.buildLandQuery(filter)
	rows, err := s.db.Pool.Query(ctx, query, args...)
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

func (s *postgresStore) CountLands(ctx context.Context, owner string, groupByIsland bool) ([]models.LandCount, error) {
	query, args := s.d.buildCountQuery(owner, groupByIsland)
	rows, err := s.db.Pool.Query(ctx, query, args...)
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
