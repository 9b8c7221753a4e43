package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const defaultListLimit = 100

type Filter struct {
	UserID   *int64
	Decision Decision
	Module   string
	Limit    int
}

// Store persists entries in access_audit_log. Queries are written with ?
// placeholders and rebound for the connected driver.
type Store struct {
	db       *sqlx.DB
	maxLimit int
}

func NewStore(db *sqlx.DB, maxLimit int) *Store {
	if maxLimit <= 0 {
		maxLimit = defaultListLimit
	}
	return &Store{db: db, maxLimit: maxLimit}
}

func (s *Store) Insert(ctx context.Context, e Entry) error {
	stamp(&e)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO access_audit_log
			(id, occurred_at, user_id, role, module, action, decision, reason, risk_level, request_id, remote_addr)
		VALUES
			(:id, :occurred_at, :user_id, :role, :module, :action, :decision, :reason, :risk_level, :request_id, :remote_addr)`, e)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Decision != "" {
		where = append(where, "decision = ?")
		args = append(args, string(f.Decision))
	}
	if f.Module != "" {
		where = append(where, "module = ?")
		args = append(args, f.Module)
	}

	limit := f.Limit
	if limit <= 0 || limit > s.maxLimit {
		limit = s.maxLimit
	}

	query := `SELECT id, occurred_at, user_id, role, module, action, decision, reason, risk_level, request_id, remote_addr
		FROM access_audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	entries := []Entry{}
	if err := s.db.SelectContext(ctx, &entries, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
