package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coupgame/coupd/pkg/game"
	"github.com/coupgame/coupd/pkg/models"
	"github.com/coupgame/coupd/pkg/store"
)

// Roster bounds for a session.
const (
	MinPlayers = 2
	MaxPlayers = 6
)

// StartingCoins is every player's coin count at game start and rematch.
const StartingCoins = 2

// SessionConfig is the admin-supplied configuration for creating or
// updating a session.
type SessionConfig struct {
	Name            string                `json:"name"`
	MaxPlayers      int                   `json:"max_players"`
	TurnLimit       int                   `json:"turn_limit"`
	UpgradesEnabled bool                  `json:"upgrades_enabled"`
	Durations       models.PhaseDurations `json:"durations"`
}

// ChannelBinding pairs a session with its bound chat channel.
type ChannelBinding struct {
	SessionID string `json:"session_id"`
	ChannelID string `json:"channel_id"`
}

// SessionService implements the session lifecycle: create, configure,
// start, end, restart, rematch, and the channel binding registry.
type SessionService struct {
	pool      *pgxpool.Pool
	sessions  *store.SessionStore
	players   *store.PlayerStore
	reactions *store.ReactionStore
	turns     *store.TurnResultStore
	rng       game.RNG
	logger    *slog.Logger
}

// NewSessionService creates a SessionService.
func NewSessionService(pool *pgxpool.Pool, rng game.RNG, logger *slog.Logger) *SessionService {
	return &SessionService{
		pool:      pool,
		sessions:  store.NewSessionStore(),
		players:   store.NewPlayerStore(),
		reactions: store.NewReactionStore(),
		turns:     store.NewTurnResultStore(),
		rng:       rng,
		logger:    logger.With("component", "session_service"),
	}
}

// Create validates the config and inserts a new session in waiting status.
func (s *SessionService) Create(ctx context.Context, cfg SessionConfig) (*models.Session, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	sess := &models.Session{
		ID:              uuid.NewString(),
		Name:            cfg.Name,
		Status:          models.StatusWaiting,
		TurnNumber:      1,
		TurnLimit:       cfg.TurnLimit,
		MaxPlayers:      cfg.MaxPlayers,
		UpgradesEnabled: cfg.UpgradesEnabled,
		Durations:       cfg.Durations,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.sessions.Create(ctx, s.pool, sess); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Session created",
		"session_id", sess.ID, "name", sess.Name, "max_players", sess.MaxPlayers)
	return sess, nil
}

// Get returns the session or ErrNotFound.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, err := s.sessions.Get(ctx, s.pool, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, notFoundf("session %s", sessionID)
	}
	return sess, nil
}

// List returns sessions, optionally filtered by status, newest first.
func (s *SessionService) List(ctx context.Context, status models.SessionStatus, limit, offset int) ([]*models.Session, error) {
	if status != "" && !models.ValidStatus(status) {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	return s.sessions.List(ctx, s.pool, status, limit, offset)
}

// UpdateConfig replaces the session's configuration. Rejected once the
// game has started.
func (s *SessionService) UpdateConfig(ctx context.Context, sessionID string, cfg SessionConfig) (*models.Session, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	var updated *models.Session
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		sess, err := s.sessions.GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return notFoundf("session %s", sessionID)
		}
		if sess.Status != models.StatusWaiting {
			return invalidStatef("cannot modify session %s in status %s", sessionID, sess.Status)
		}

		sess.Name = cfg.Name
		sess.MaxPlayers = cfg.MaxPlayers
		sess.TurnLimit = cfg.TurnLimit
		sess.UpgradesEnabled = cfg.UpgradesEnabled
		sess.Durations = cfg.Durations
		updated = sess
		return s.sessions.Update(ctx, tx, sess)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Start transitions the session from waiting to active: initialises the
// deck, deals two cards and two coins to every joined player, and opens
// the first action phase.
func (s *SessionService) Start(ctx context.Context, sessionID string) (*models.Session, error) {
	var started *models.Session
	var playerCount int
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		sess, err := s.sessions.GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return notFoundf("session %s", sessionID)
		}
		if sess.Status != models.StatusWaiting {
			return invalidStatef("cannot start session %s in status %s", sessionID, sess.Status)
		}

		players, err := s.players.ListBySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if len(players) < MinPlayers {
			return preconditionf("session %s has %d players, needs at least %d",
				sessionID, len(players), MinPlayers)
		}
		playerCount = len(players)

		deck := game.NewDeck(s.rng)
		if err := deck.Deal(players); err != nil {
			return fmt.Errorf("dealing session %s: %w", sessionID, err)
		}
		for _, p := range players {
			p.Coins = StartingCoins
			p.Debt = 0
			p.Alive = true
			if err := s.players.Update(ctx, tx, p); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		phase := models.PhaseAction
		endTime := now.Add(sess.Durations.For(phase))
		sess.Status = models.StatusActive
		sess.CurrentPhase = &phase
		sess.PhaseEndTime = &endTime
		sess.TurnNumber = 1
		sess.Deck = deck.Cards()
		sess.Revealed = nil
		sess.Winners = nil
		sess.TurnSummary = ""
		started = sess
		return s.sessions.Update(ctx, tx, sess)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Session started",
		"session_id", sessionID, "players", playerCount, "phase", string(models.PhaseAction))
	return started, nil
}

// End finalises the session immediately: winners are computed from the
// current player states and the session moves to completed.
func (s *SessionService) End(ctx context.Context, sessionID string) (*models.Session, error) {
	var ended *models.Session
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		sess, err := s.sessions.GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return notFoundf("session %s", sessionID)
		}
		switch sess.Status {
		case models.StatusCompleted, models.StatusCancelled:
			return invalidStatef("session %s already in status %s", sessionID, sess.Status)
		case models.StatusWaiting:
			sess.Status = models.StatusCancelled
		default:
			players, err := s.players.ListBySession(ctx, tx, sessionID)
			if err != nil {
				return err
			}
			sess.Status = models.StatusCompleted
			sess.Winners = game.DetermineWinners(players)
		}
		sess.CurrentPhase = nil
		sess.PhaseEndTime = nil
		ended = sess
		return s.sessions.Update(ctx, tx, sess)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Session ended",
		"session_id", sessionID, "status", string(ended.Status),
		"winners", strings.Join(ended.Winners, ","))
	return ended, nil
}

// Restart returns the session to waiting with an empty roster and a zero
// rematch count. Turn history and chat are preserved.
func (s *SessionService) Restart(ctx context.Context, sessionID string) (*models.Session, error) {
	var restarted *models.Session
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		sess, err := s.sessions.GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return notFoundf("session %s", sessionID)
		}

		if err := s.players.DeleteBySession(ctx, tx, sessionID); err != nil {
			return err
		}
		if err := s.reactions.DeleteBySession(ctx, tx, sessionID); err != nil {
			return err
		}

		sess.Status = models.StatusWaiting
		sess.CurrentPhase = nil
		sess.PhaseEndTime = nil
		sess.TurnNumber = 1
		sess.RematchCount = 0
		sess.Winners = nil
		sess.Deck = nil
		sess.Revealed = nil
		sess.TurnSummary = ""
		restarted = sess
		return s.sessions.Update(ctx, tx, sess)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Session restarted", "session_id", sessionID)
	return restarted, nil
}

// Rematch starts a new game with the same roster. Allowed only during the
// ending phase while the rematch cap has headroom. Hands, coins, and
// statuses reset; the phase cycle restarts at the action phase.
func (s *SessionService) Rematch(ctx context.Context, sessionID string) (*models.Session, error) {
	var rematched *models.Session
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		sess, err := s.sessions.GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return notFoundf("session %s", sessionID)
		}
		if sess.Status != models.StatusActive || sess.Phase() != models.PhaseEnding {
			return invalidStatef("rematch requires the ending phase, session %s is in %s/%s",
				sessionID, sess.Status, sess.Phase())
		}
		if sess.RematchCount >= models.MaxRematches {
			return preconditionf("session %s reached the rematch limit of %d",
				sessionID, models.MaxRematches)
		}

		players, err := s.players.ListBySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}

		deck := game.NewDeck(s.rng)
		if err := deck.Deal(players); err != nil {
			return fmt.Errorf("dealing rematch for session %s: %w", sessionID, err)
		}
		for _, p := range players {
			p.Coins = StartingCoins
			p.Debt = 0
			p.Alive = true
			p.PendingAction = ""
			p.PendingTarget = ""
			p.Upgrade = nil
			if err := s.players.Update(ctx, tx, p); err != nil {
				return err
			}
		}
		if err := s.reactions.DeleteBySession(ctx, tx, sessionID); err != nil {
			return err
		}

		// Moving the phase off ending inside this transaction is what
		// cancels the pending ending job: the clock's claim re-checks the
		// phase and finds it has moved.
		now := time.Now().UTC()
		phase := models.PhaseAction
		endTime := now.Add(sess.Durations.For(phase))
		sess.CurrentPhase = &phase
		sess.PhaseEndTime = &endTime
		sess.TurnNumber = 1
		sess.RematchCount++
		sess.Winners = nil
		sess.Deck = deck.Cards()
		sess.Revealed = nil
		sess.TurnSummary = ""
		rematched = sess
		return s.sessions.Update(ctx, tx, sess)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Session rematch started",
		"session_id", sessionID, "rematch_count", rematched.RematchCount)
	return rematched, nil
}

// Turns returns the session's persisted turn history.
func (s *SessionService) Turns(ctx context.Context, sessionID string) ([]*models.TurnResult, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.turns.ListBySession(ctx, s.pool, sessionID)
}

// BindDiscord binds a Discord channel to the session.
func (s *SessionService) BindDiscord(ctx context.Context, sessionID, channelID string) (*models.Session, error) {
	if channelID == "" {
		return nil, NewValidationError("channel_id", "must not be empty")
	}
	return s.setBinding(ctx, sessionID, models.PlatformDiscord, &channelID)
}

// UnbindDiscord removes the session's Discord channel binding.
func (s *SessionService) UnbindDiscord(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.setBinding(ctx, sessionID, models.PlatformDiscord, nil)
}

// BindSlack binds a Slack channel to the session.
func (s *SessionService) BindSlack(ctx context.Context, sessionID, channelID string) (*models.Session, error) {
	if channelID == "" {
		return nil, NewValidationError("channel_id", "must not be empty")
	}
	return s.setBinding(ctx, sessionID, models.PlatformSlack, &channelID)
}

// UnbindSlack removes the session's Slack channel binding.
func (s *SessionService) UnbindSlack(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.setBinding(ctx, sessionID, models.PlatformSlack, nil)
}

func (s *SessionService) setBinding(ctx context.Context, sessionID string, platform models.Platform, channelID *string) (*models.Session, error) {
	var bound *models.Session
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		sess, err := s.sessions.GetForUpdate(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return notFoundf("session %s", sessionID)
		}
		switch platform {
		case models.PlatformDiscord:
			sess.DiscordChannel = channelID
		case models.PlatformSlack:
			sess.SlackChannel = channelID
		default:
			return NewValidationError("platform", fmt.Sprintf("cannot bind platform %q", platform))
		}
		bound = sess
		return s.sessions.Update(ctx, tx, sess)
	})
	if err != nil {
		return nil, err
	}
	return bound, nil
}

// DiscordBindings lists every (session, Discord channel) pair. Gateways
// call this at startup to rebuild their routing tables.
func (s *SessionService) DiscordBindings(ctx context.Context) ([]ChannelBinding, error) {
	sessions, err := s.sessions.ListDiscordBindings(ctx, s.pool)
	if err != nil {
		return nil, err
	}
	out := make([]ChannelBinding, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, ChannelBinding{SessionID: sess.ID, ChannelID: *sess.DiscordChannel})
	}
	return out, nil
}

// SlackBindings lists every (session, Slack channel) pair.
func (s *SessionService) SlackBindings(ctx context.Context) ([]ChannelBinding, error) {
	sessions, err := s.sessions.ListSlackBindings(ctx, s.pool)
	if err != nil {
		return nil, err
	}
	out := make([]ChannelBinding, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, ChannelBinding{SessionID: sess.ID, ChannelID: *sess.SlackChannel})
	}
	return out, nil
}

func validateConfig(cfg *SessionConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return NewValidationError("name", "must not be empty")
	}
	if cfg.MaxPlayers < MinPlayers || cfg.MaxPlayers > MaxPlayers {
		return NewValidationError("max_players",
			fmt.Sprintf("must be between %d and %d", MinPlayers, MaxPlayers))
	}
	if cfg.TurnLimit < 0 {
		return NewValidationError("turn_limit", "must not be negative")
	}
	if (cfg.Durations == models.PhaseDurations{}) {
		cfg.Durations = models.DefaultPhaseDurations()
	}
	if !cfg.Durations.Valid() {
		return NewValidationError("durations", "every phase duration must be positive")
	}
	return nil
}
