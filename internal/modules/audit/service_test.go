package audit

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamscryps/backend/internal/database"
	"github.com/teamscryps/backend/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano()),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	require.NoError(t, database.InitSchema(db.Conn()))
	t.Cleanup(func() { _ = db.Close() })
	return db.Conn()
}

func setupService(t *testing.T) (*Service, *Repository, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	return NewService(repo, zerolog.Nop()), repo, db
}

func TestAppendChainsHashes(t *testing.T) {
	svc, repo, db := setupService(t)
	actor := int64(1)

	first, err := svc.Append(db, &actor, nil, domain.AuditOrderAccepted, "order accepted", map[string]interface{}{"order_id": 10})
	require.NoError(t, err)
	assert.Empty(t, first.PrevHash, "genesis row has no predecessor")
	assert.NotEmpty(t, first.Hash)

	second, err := svc.Append(db, &actor, nil, domain.AuditFundsDebit, "funds reserved", map[string]interface{}{"amount": "5000.00"})
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.PrevHash)

	entries, err := repo.List(db, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.Hash, entries[0].Hash)
}

func TestComputeHashIsDeterministic(t *testing.T) {
	actor, target := int64(1), int64(2)
	entry := &domain.AuditEntry{
		ActorID:     &actor,
		TargetID:    &target,
		Action:      domain.AuditFillApplied,
		Description: "fill",
		Details:     map[string]interface{}{"qty": 40, "price": "49.0000"},
		PrevHash:    "abc",
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h1, err := ComputeHash(entry)
	require.NoError(t, err)
	h2, err := ComputeHash(entry)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	entry.Details["qty"] = 41
	h3, err := ComputeHash(entry)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3, "any field change must change the hash")
}

func TestVerifyDetectsTampering(t *testing.T) {
	svc, _, db := setupService(t)
	actor := int64(1)

	for i := 0; i < 3; i++ {
		_, err := svc.Append(db, &actor, nil, domain.AuditFundsCredit, "credit", map[string]interface{}{"n": i})
		require.NoError(t, err)
	}

	result, err := svc.Verify(db)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 3, result.Checked)

	// Rewrite the middle row's description without recomputing its hash.
	_, err = db.Exec(`UPDATE audit_log SET description = 'edited' WHERE id = 2`)
	require.NoError(t, err)

	result, err = svc.Verify(db)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.EqualValues(t, 2, result.BrokenAt)
}

func TestVerifyDetectsBrokenLink(t *testing.T) {
	svc, _, db := setupService(t)
	actor := int64(1)

	for i := 0; i < 2; i++ {
		_, err := svc.Append(db, &actor, nil, domain.AuditFundsDebit, "debit", nil)
		require.NoError(t, err)
	}

	// Point the second row at a forged predecessor.
	_, err := db.Exec(`UPDATE audit_log SET prev_hash = 'forged' WHERE id = 2`)
	require.NoError(t, err)

	result, err := svc.Verify(db)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.EqualValues(t, 2, result.BrokenAt)
}
