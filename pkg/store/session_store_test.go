package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coupgame/coupd/pkg/models"
	"github.com/coupgame/coupd/test/util"
)

func insertSession(t *testing.T, db DB, id string, status models.SessionStatus, phase models.Phase, due time.Duration) {
	t.Helper()
	sess := &models.Session{
		ID:         id,
		Name:       id,
		Status:     status,
		TurnNumber: 1,
		MaxPlayers: 4,
		Durations:  models.DefaultPhaseDurations(),
		CreatedAt:  time.Now().UTC(),
	}
	if phase != "" {
		end := time.Now().UTC().Add(due)
		sess.CurrentPhase = &phase
		sess.PhaseEndTime = &end
	}
	require.NoError(t, NewSessionStore().Create(context.Background(), db, sess))
}

func TestClaimDuePicksMostOverdueActiveSession(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	sessions := NewSessionStore()

	insertSession(t, pool, "overdue-old", models.StatusActive, models.PhaseAction, -2*time.Minute)
	insertSession(t, pool, "overdue-new", models.StatusActive, models.PhaseReaction, -time.Second)
	insertSession(t, pool, "not-due", models.StatusActive, models.PhaseAction, time.Hour)
	insertSession(t, pool, "waiting", models.StatusWaiting, "", 0)
	insertSession(t, pool, "done", models.StatusCompleted, "", 0)

	sess, err := sessions.ClaimDue(ctx, pool, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "overdue-old", sess.ID)
}

func TestClaimDueNothingDue(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	sessions := NewSessionStore()

	insertSession(t, pool, "future", models.StatusActive, models.PhaseAction, time.Hour)

	sess, err := sessions.ClaimDue(context.Background(), pool, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestClaimDueSkipsLockedRows(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	ctx := context.Background()
	sessions := NewSessionStore()

	insertSession(t, pool, "only-job", models.StatusActive, models.PhaseAction, -time.Minute)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	claimed, err := sessions.ClaimDue(ctx, tx, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	// A concurrent worker sees the row as taken and claims nothing.
	other, err := sessions.ClaimDue(ctx, pool, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, other)
}
