// Package simstore is the SQLite-backed persistence port for the simulation
// engine: timeline branches, the active-branch pointer, scheduled events, day
// packets and finance fixtures.
package simstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed simulation persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// One connection keeps ":memory:" databases coherent and serializes
	// writers the same way the engine does.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Open wraps an already-migrated database handle
func Open(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

const branchColumns = `b.id, b.name, b.branched_from, b.cursor_date, b.created_at,
	CASE WHEN p.active_branch_id IS NULL THEN 0 ELSE 1 END`

const branchFrom = `FROM branches b LEFT JOIN clock_pointer p ON p.active_branch_id = b.id`

// CreateBranch inserts a new branch record
func (s *Store) CreateBranch(ctx context.Context, b *domain.TimelineBranch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, branched_from, cursor_date, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID, b.Name, b.BranchedFrom, b.CurrentDate, b.CreatedAt)
	return domain.Persistence("create branch", err)
}

// GetBranch retrieves a branch by ID
func (s *Store) GetBranch(ctx context.Context, id string) (*domain.TimelineBranch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+branchColumns+` `+branchFrom+` WHERE b.id = ?`, id)

	b, err := scanBranch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("branch %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.Persistence("get branch", err)
	}
	return b, nil
}

// ListBranches returns every branch in creation order
func (s *Store) ListBranches(ctx context.Context) ([]*domain.TimelineBranch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+branchColumns+` `+branchFrom+` ORDER BY b.created_at, b.rowid`)
	if err != nil {
		return nil, domain.Persistence("list branches", err)
	}
	defer rows.Close()

	var branches []*domain.TimelineBranch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, domain.Persistence("list branches", err)
		}
		branches = append(branches, b)
	}

	return branches, domain.Persistence("list branches", rows.Err())
}

// UpdateBranchDate moves a branch's cursor
func (s *Store) UpdateBranchDate(ctx context.Context, id string, date domain.Date) error {
	res, err := s.db.ExecContext(ctx, `UPDATE branches SET cursor_date = ? WHERE id = ?`, date, id)
	if err != nil {
		return domain.Persistence("update branch", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Persistence("update branch", err)
	}
	if n == 0 {
		return fmt.Errorf("branch %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ActiveBranchID returns the active branch pointer, or "" when unset
func (s *Store) ActiveBranchID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT active_branch_id FROM clock_pointer WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", domain.Persistence("get active branch", err)
	}
	return id, nil
}

// SetActiveBranch points the clock at a branch in a single statement
func (s *Store) SetActiveBranch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO clock_pointer (id, active_branch_id, updated_at)
		SELECT 1, id, ? FROM branches WHERE id = ?
		ON CONFLICT(id) DO UPDATE SET
			active_branch_id = excluded.active_branch_id,
			updated_at = excluded.updated_at
	`, time.Now(), id)
	if err != nil {
		return domain.Persistence("set active branch", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Persistence("set active branch", err)
	}
	if n == 0 {
		return fmt.Errorf("branch %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBranch(row rowScanner) (*domain.TimelineBranch, error) {
	var b domain.TimelineBranch
	var active int
	var createdAt sql.NullTime

	err := row.Scan(&b.ID, &b.Name, &b.BranchedFrom, &b.CurrentDate, &createdAt, &active)
	if err != nil {
		return nil, err
	}

	b.IsActive = active == 1
	if createdAt.Valid {
		b.CreatedAt = createdAt.Time
	}
	return &b, nil
}
