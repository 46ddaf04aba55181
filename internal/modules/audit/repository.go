// Package audit maintains the append-only, hash-chained log of every
// money and holding mutation.
package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/teamscryps/backend/internal/database"
	"github.com/teamscryps/backend/internal/domain"
)

// Repository provides access to the audit_log table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new audit repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "audit").Logger(),
	}
}

// LastHash returns the hash of the highest-id row, or "" when the log is
// empty. Must run inside the same transaction as the subsequent insert so
// the predecessor read and the append serialize together.
func (r *Repository) LastHash(q database.Executor) (string, error) {
	var hash string
	err := q.QueryRow(`SELECT hash FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last audit hash: %w", err)
	}
	return hash, nil
}

// Insert persists a fully computed entry.
func (r *Repository) Insert(q database.Executor, e *domain.AuditEntry) (int64, error) {
	var details interface{}
	if e.Details != nil {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal audit details: %w", err)
		}
		details = string(raw)
	}
	var prevHash interface{}
	if e.PrevHash != "" {
		prevHash = e.PrevHash
	}

	res, err := q.Exec(`
		INSERT INTO audit_log (actor_id, target_id, action, description, details, prev_hash, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableID(e.ActorID), nullableID(e.TargetID), e.Action, e.Description,
		details, prevHash, e.Hash, domain.FormatTime(e.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert audit entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get audit entry id: %w", err)
	}
	e.ID = id
	return id, nil
}

// Filter narrows List results.
type Filter struct {
	ActorID *int64
	Action  string
	Limit   int
}

// List returns entries in id order, oldest first.
func (r *Repository) List(q database.Executor, f Filter) ([]*domain.AuditEntry, error) {
	query := `SELECT id, actor_id, target_id, action, description, details, prev_hash, hash, created_at
		FROM audit_log WHERE 1=1`
	args := []interface{}{}
	if f.ActorID != nil {
		query += ` AND actor_id = ?`
		args = append(args, *f.ActorID)
	}
	if f.Action != "" {
		query += ` AND action = ?`
		args = append(args, f.Action)
	}
	query += ` ORDER BY id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func scanEntry(rows *sql.Rows) (*domain.AuditEntry, error) {
	var (
		e                 domain.AuditEntry
		actorID, targetID sql.NullInt64
		details, prevHash sql.NullString
		createdAt         string
	)
	err := rows.Scan(&e.ID, &actorID, &targetID, &e.Action, &e.Description, &details, &prevHash, &e.Hash, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}
	if actorID.Valid {
		e.ActorID = &actorID.Int64
	}
	if targetID.Valid {
		e.TargetID = &targetID.Int64
	}
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
		}
	}
	if prevHash.Valid {
		e.PrevHash = prevHash.String
	}
	e.CreatedAt = domain.ParseTime(createdAt)
	return &e, nil
}
