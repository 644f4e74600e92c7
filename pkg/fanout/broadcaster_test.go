package fanout

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coupgame/coupd/pkg/models"
	"github.com/coupgame/coupd/pkg/services"
	"github.com/coupgame/coupd/test/util"
)

type fanoutFixture struct {
	pool        *pgxpool.Pool
	chat        *services.ChatService
	broadcaster *Broadcaster
	sessionID   string
}

func newFanoutFixture(t *testing.T) *fanoutFixture {
	pool := util.SetupTestDatabase(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rng := rand.New(rand.NewPCG(3, 4))

	sessions := services.NewSessionService(pool, rng, logger)
	sess, err := sessions.Create(context.Background(), services.SessionConfig{
		Name:       "broadcast table",
		MaxPlayers: 4,
		Durations:  models.DefaultPhaseDurations(),
	})
	require.NoError(t, err)

	return &fanoutFixture{
		pool:        pool,
		chat:        services.NewChatService(pool, nil, logger),
		broadcaster: NewBroadcaster(pool, time.Second, time.Minute, logger),
		sessionID:   sess.ID,
	}
}

// batchRecorder is an httptest handler collecting every pushed batch.
type batchRecorder struct {
	mu      sync.Mutex
	batches []BatchPayload
	status  int
}

func (r *batchRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var payload BatchPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	r.batches = append(r.batches, payload)
	r.mu.Unlock()
	if r.status != 0 {
		w.WriteHeader(r.status)
	}
}

func (r *batchRecorder) received() []BatchPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BatchPayload(nil), r.batches...)
}

func (f *fanoutFixture) queuedCount(t *testing.T) int {
	t.Helper()
	var n int
	err := f.pool.QueryRow(context.Background(),
		`SELECT count(*) FROM chat_messages WHERE session_id = $1`, f.sessionID).Scan(&n)
	require.NoError(t, err)
	return n
}

func (f *fanoutFixture) lastBroadcastAt(t *testing.T, platform models.Platform) *time.Time {
	t.Helper()
	var at *time.Time
	err := f.pool.QueryRow(context.Background(),
		`SELECT last_broadcast_at FROM chat_endpoints WHERE session_id = $1 AND platform = $2`,
		f.sessionID, platform).Scan(&at)
	require.NoError(t, err)
	return at
}

func TestBroadcastDeliversToAllEndpoints(t *testing.T) {
	f := newFanoutFixture(t)
	ctx := context.Background()

	discord := &batchRecorder{}
	slack := &batchRecorder{}
	discordSrv := httptest.NewServer(discord)
	defer discordSrv.Close()
	slackSrv := httptest.NewServer(slack)
	defer slackSrv.Close()

	_, err := f.chat.RegisterEndpoint(ctx, f.sessionID, models.PlatformDiscord, discordSrv.URL)
	require.NoError(t, err)
	_, err = f.chat.RegisterEndpoint(ctx, f.sessionID, models.PlatformSlack, slackSrv.URL)
	require.NoError(t, err)

	_, err = f.chat.Queue(ctx, f.sessionID, "alice", models.PlatformWeb, "I am taking tax")
	require.NoError(t, err)
	_, err = f.chat.Queue(ctx, f.sessionID, "bob", models.PlatformDiscord, "doubt it")
	require.NoError(t, err)

	require.NoError(t, f.broadcaster.Broadcast(ctx, f.sessionID))

	for _, rec := range []*batchRecorder{discord, slack} {
		batches := rec.received()
		require.Len(t, batches, 1)
		batch := batches[0]
		assert.Equal(t, f.sessionID, batch.SessionID)
		assert.Equal(t, 2, batch.MessageCount)
		require.Len(t, batch.Messages, 2)
		assert.Equal(t, "alice", batch.Messages[0].Sender)
		assert.Equal(t, "I am taking tax", batch.Messages[0].Content)
		assert.Less(t, batch.Messages[0].ID, batch.Messages[1].ID)
		assert.NotEmpty(t, batch.BroadcastTime)
	}

	assert.Equal(t, 0, f.queuedCount(t))
	assert.NotNil(t, f.lastBroadcastAt(t, models.PlatformDiscord))
	assert.NotNil(t, f.lastBroadcastAt(t, models.PlatformSlack))
}

func TestBroadcastClearsQueueOnEndpointFailure(t *testing.T) {
	f := newFanoutFixture(t)
	ctx := context.Background()

	failing := &batchRecorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(failing)
	defer srv.Close()

	_, err := f.chat.RegisterEndpoint(ctx, f.sessionID, models.PlatformDiscord, srv.URL)
	require.NoError(t, err)
	_, err = f.chat.Queue(ctx, f.sessionID, "alice", models.PlatformWeb, "going once")
	require.NoError(t, err)

	require.NoError(t, f.broadcaster.Broadcast(ctx, f.sessionID))

	// The snapshot is dropped even though delivery failed, and the failed
	// endpoint's delivery marker does not advance.
	assert.Equal(t, 0, f.queuedCount(t))
	assert.Nil(t, f.lastBroadcastAt(t, models.PlatformDiscord))
}

func TestBroadcastWithoutEndpointsDropsQueue(t *testing.T) {
	f := newFanoutFixture(t)
	ctx := context.Background()

	_, err := f.chat.Queue(ctx, f.sessionID, "alice", models.PlatformWeb, "anyone here?")
	require.NoError(t, err)

	require.NoError(t, f.broadcaster.Broadcast(ctx, f.sessionID))
	assert.Equal(t, 0, f.queuedCount(t))
}

func TestBroadcastEmptyQueueIsNoop(t *testing.T) {
	f := newFanoutFixture(t)
	ctx := context.Background()

	rec := &batchRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	_, err := f.chat.RegisterEndpoint(ctx, f.sessionID, models.PlatformDiscord, srv.URL)
	require.NoError(t, err)

	require.NoError(t, f.broadcaster.Broadcast(ctx, f.sessionID))
	assert.Empty(t, rec.received())
	assert.Nil(t, f.lastBroadcastAt(t, models.PlatformDiscord))
}

func TestTickDrainsQueuedSessions(t *testing.T) {
	f := newFanoutFixture(t)
	ctx := context.Background()

	rec := &batchRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	_, err := f.chat.RegisterEndpoint(ctx, f.sessionID, models.PlatformDiscord, srv.URL)
	require.NoError(t, err)
	_, err = f.chat.Queue(ctx, f.sessionID, "alice", models.PlatformWeb, "tick test")
	require.NoError(t, err)

	f.broadcaster.tick(ctx)

	require.Len(t, rec.received(), 1)
	assert.Equal(t, 0, f.queuedCount(t))
}
