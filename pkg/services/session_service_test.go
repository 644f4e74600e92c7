package services

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coupgame/coupd/pkg/models"
	"github.com/coupgame/coupd/test/util"
)

func newTestServices(t *testing.T) (*SessionService, *PlayerService, *ChatService, *pgxpool.Pool) {
	pool := util.SetupTestDatabase(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rng := rand.New(rand.NewPCG(1, 2))
	return NewSessionService(pool, rng, logger),
		NewPlayerService(pool, rng, logger),
		NewChatService(pool, nil, logger),
		pool
}

func defaultConfig() SessionConfig {
	return SessionConfig{
		Name:       "friday table",
		MaxPlayers: 4,
		Durations:  models.DefaultPhaseDurations(),
	}
}

// startedSession creates a session, joins the named players, and starts it.
func startedSession(t *testing.T, sessions *SessionService, players *PlayerService, names ...string) *models.Session {
	ctx := context.Background()
	sess, err := sessions.Create(ctx, defaultConfig())
	require.NoError(t, err)
	for _, name := range names {
		_, err := players.Join(ctx, sess.ID, "u-"+name, name)
		require.NoError(t, err)
	}
	started, err := sessions.Start(ctx, sess.ID)
	require.NoError(t, err)
	return started
}

func TestCreateSessionValidation(t *testing.T) {
	sessions, _, _, _ := newTestServices(t)
	ctx := context.Background()

	_, err := sessions.Create(ctx, SessionConfig{Name: "", MaxPlayers: 4})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "name", vErr.Field)

	_, err = sessions.Create(ctx, SessionConfig{Name: "t", MaxPlayers: 7})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "max_players", vErr.Field)

	// Omitted durations fall back to the defaults.
	sess, err := sessions.Create(ctx, SessionConfig{Name: "t", MaxPlayers: 3})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPhaseDurations(), sess.Durations)
	assert.Equal(t, models.StatusWaiting, sess.Status)
}

func TestGetSessionNotFound(t *testing.T) {
	sessions, _, _, _ := newTestServices(t)
	_, err := sessions.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartSessionDealsAndOpensActionPhase(t *testing.T) {
	sessions, players, _, _ := newTestServices(t)
	ctx := context.Background()

	sess := startedSession(t, sessions, players, "alice", "bob")
	assert.Equal(t, models.StatusActive, sess.Status)
	assert.Equal(t, models.PhaseAction, sess.Phase())
	require.NotNil(t, sess.PhaseEndTime)
	assert.Equal(t, 1, sess.TurnNumber)
	assert.Len(t, sess.Deck, models.DeckSize-4)

	state, err := players.GameState(ctx, sess.ID, "u-alice")
	require.NoError(t, err)
	require.Len(t, state.Players, 2)
	for _, p := range state.Players {
		assert.Equal(t, 2, p.HandCount)
		assert.Equal(t, StartingCoins, p.Coins)
		assert.True(t, p.Alive)
	}
	assert.Len(t, state.YourHand, 2)
}

func TestStartSessionRequiresTwoPlayers(t *testing.T) {
	sessions, players, _, _ := newTestServices(t)
	ctx := context.Background()

	sess, err := sessions.Create(ctx, defaultConfig())
	require.NoError(t, err)
	_, err = players.Join(ctx, sess.ID, "u-alice", "alice")
	require.NoError(t, err)

	_, err = sessions.Start(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestUpdateConfigRejectedOnceStarted(t *testing.T) {
	sessions, players, _, _ := newTestServices(t)
	ctx := context.Background()

	sess := startedSession(t, sessions, players, "alice", "bob")
	_, err := sessions.UpdateConfig(ctx, sess.ID, defaultConfig())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEndActiveSessionComputesWinners(t *testing.T) {
	sessions, players, _, _ := newTestServices(t)
	ctx := context.Background()

	sess := startedSession(t, sessions, players, "alice", "bob")
	ended, err := sessions.End(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, ended.Status)
	assert.Nil(t, ended.CurrentPhase)
	assert.ElementsMatch(t, []string{"alice", "bob"}, ended.Winners)

	_, err = sessions.End(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEndWaitingSessionCancels(t *testing.T) {
	sessions, _, _, _ := newTestServices(t)
	ctx := context.Background()

	sess, err := sessions.Create(ctx, defaultConfig())
	require.NoError(t, err)
	ended, err := sessions.End(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, ended.Status)
}

func TestRestartClearsRosterAndRematchCount(t *testing.T) {
	sessions, players, _, _ := newTestServices(t)
	ctx := context.Background()

	sess := startedSession(t, sessions, players, "alice", "bob")
	restarted, err := sessions.Restart(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, restarted.Status)
	assert.Nil(t, restarted.CurrentPhase)
	assert.Equal(t, 0, restarted.RematchCount)
	assert.Empty(t, restarted.Deck)

	state, err := players.GameState(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.Empty(t, state.Players)
}

func TestRematchOnlyFromEndingPhase(t *testing.T) {
	sessions, players, _, _ := newTestServices(t)
	ctx := context.Background()

	sess := startedSession(t, sessions, players, "alice", "bob")
	_, err := sessions.Rematch(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRematchFromEndingResetsGame(t *testing.T) {
	sessions, players, _, pool := newTestServices(t)
	ctx := context.Background()

	sess := startedSession(t, sessions, players, "alice", "bob")
	forcePhase(t, pool, sess.ID, models.PhaseEnding)

	rematched, err := sessions.Rematch(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAction, rematched.Phase())
	assert.Equal(t, 1, rematched.RematchCount)
	assert.Equal(t, 1, rematched.TurnNumber)
	assert.Empty(t, rematched.Winners)

	state, err := players.GameState(ctx, sess.ID, "u-alice")
	require.NoError(t, err)
	require.Len(t, state.Players, 2)
	for _, p := range state.Players {
		assert.Equal(t, StartingCoins, p.Coins)
		assert.Equal(t, 2, p.HandCount)
	}
}

func TestRematchLimit(t *testing.T) {
	sessions, players, _, pool := newTestServices(t)
	ctx := context.Background()

	sess := startedSession(t, sessions, players, "alice", "bob")
	for i := 0; i < models.MaxRematches; i++ {
		forcePhase(t, pool, sess.ID, models.PhaseEnding)
		_, err := sessions.Rematch(ctx, sess.ID)
		require.NoError(t, err)
	}

	forcePhase(t, pool, sess.ID, models.PhaseEnding)
	_, err := sessions.Rematch(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestChannelBindingRoundTrip(t *testing.T) {
	sessions, _, _, _ := newTestServices(t)
	ctx := context.Background()

	sess, err := sessions.Create(ctx, defaultConfig())
	require.NoError(t, err)

	bound, err := sessions.BindDiscord(ctx, sess.ID, "chan-123")
	require.NoError(t, err)
	require.NotNil(t, bound.DiscordChannel)
	assert.Equal(t, "chan-123", *bound.DiscordChannel)

	bindings, err := sessions.DiscordBindings(ctx)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, ChannelBinding{SessionID: sess.ID, ChannelID: "chan-123"}, bindings[0])

	unbound, err := sessions.UnbindDiscord(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, unbound.DiscordChannel)

	bindings, err = sessions.DiscordBindings(ctx)
	require.NoError(t, err)
	assert.Empty(t, bindings)
}

func TestListSessionsFiltersByStatus(t *testing.T) {
	sessions, players, _, _ := newTestServices(t)
	ctx := context.Background()

	startedSession(t, sessions, players, "alice", "bob")
	_, err := sessions.Create(ctx, defaultConfig())
	require.NoError(t, err)

	waiting, err := sessions.List(ctx, models.StatusWaiting, 10, 0)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, models.StatusWaiting, waiting[0].Status)

	all, err := sessions.List(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = sessions.List(ctx, "bogus", 10, 0)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

// forcePhase moves an active session into the given phase with an already
// expired deadline.
func forcePhase(t *testing.T, pool *pgxpool.Pool, sessionID string, phase models.Phase) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		UPDATE game_sessions
		SET current_phase = $2, phase_end_time = now() - interval '1 second'
		WHERE id = $1`, sessionID, string(phase))
	require.NoError(t, err)
}
