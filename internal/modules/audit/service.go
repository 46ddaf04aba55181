package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamscryps/backend/internal/database"
	"github.com/teamscryps/backend/internal/domain"
)

// Service appends to and verifies the hash chain. Each row's hash is
// SHA-256 over a canonical JSON payload (sorted keys, fixed timestamp
// format) that includes the predecessor's hash, so any edit to a stored
// row breaks the chain from that point forward.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new audit service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "audit").Logger(),
	}
}

// Append writes one chained entry. Must run inside the caller's write
// transaction: the predecessor lookup and the insert have to serialize as
// one unit, and the caller's ledger mutation must commit atomically with
// its audit record.
func (s *Service) Append(tx database.Executor, actorID, targetID *int64, action, description string, details map[string]interface{}) (*domain.AuditEntry, error) {
	prevHash, err := s.repo.LastHash(tx)
	if err != nil {
		return nil, err
	}

	entry := &domain.AuditEntry{
		ActorID:     actorID,
		TargetID:    targetID,
		Action:      action,
		Description: description,
		Details:     details,
		PrevHash:    prevHash,
		CreatedAt:   time.Now().UTC(),
	}
	entry.Hash, err = ComputeHash(entry)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.Insert(tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ComputeHash returns the SHA-256 hex digest of the entry's canonical
// payload.
func ComputeHash(e *domain.AuditEntry) (string, error) {
	payload, err := canonicalPayload(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalPayload encodes the hashed fields deterministically. Go's JSON
// encoder writes map keys in sorted order, which is the canonical-form
// requirement; timestamps use the fixed microsecond UTC layout.
func canonicalPayload(e *domain.AuditEntry) ([]byte, error) {
	var prevHash interface{}
	if e.PrevHash != "" {
		prevHash = e.PrevHash
	}
	payload := map[string]interface{}{
		"action":      e.Action,
		"actor_id":    idOrNull(e.ActorID),
		"description": e.Description,
		"details":     e.Details,
		"prev_hash":   prevHash,
		"target_id":   idOrNull(e.TargetID),
		"ts":          domain.FormatTime(e.CreatedAt),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode canonical audit payload: %w", err)
	}
	return raw, nil
}

func idOrNull(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

// VerifyResult reports the outcome of a chain walk.
type VerifyResult struct {
	OK       bool  `json:"ok"`
	Checked  int   `json:"checked"`
	BrokenAt int64 `json:"broken_at,omitempty"` // id of the first bad row
}

// Verify recomputes every row's hash and checks each prev_hash against
// its predecessor. The chain is tamper-evident only: a broken row marks
// everything from that id forward as untrusted.
func (s *Service) Verify(q database.Executor) (*VerifyResult, error) {
	entries, err := s.repo.List(q, Filter{})
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{OK: true}
	prevHash := ""
	for _, e := range entries {
		result.Checked++
		expected, err := ComputeHash(e)
		if err != nil {
			return nil, err
		}
		if e.Hash != expected || e.PrevHash != prevHash {
			result.OK = false
			result.BrokenAt = e.ID
			return result, nil
		}
		prevHash = e.Hash
	}
	return result, nil
}
