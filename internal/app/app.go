// Package app wires the pollstream client together: config, session, REST
// client, websocket transport, reconciliation store, and the terminal UI.
package app

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/livepoll/pollstream/config"
	"github.com/livepoll/pollstream/internal/api"
	"github.com/livepoll/pollstream/internal/events"
	"github.com/livepoll/pollstream/internal/models"
	"github.com/livepoll/pollstream/internal/session"
	"github.com/livepoll/pollstream/internal/store"
	"github.com/livepoll/pollstream/internal/transport"
	"github.com/livepoll/pollstream/internal/ui"
)

// Options configure the application.
type Options struct {
	NoUI bool // headless mode: log state changes instead of rendering
}

// Run boots the client until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	tokens := session.NewTokenStore(cfg.Session.TokenFile)
	sess := session.New(tokens, logger)
	client := api.New(api.Config{BaseURL: cfg.API.BaseURL, Timeout: cfg.API.Timeout}, sess, logger)
	sess.Bind(client)

	st := store.New(client, logger)
	sess.OnChange(func(user *models.CurrentUser) {
		st.SetProfile(user)
	})

	adapter := transport.New(transport.Config{
		URL:              cfg.Stream.URL,
		ReconnectDelay:   cfg.Stream.ReconnectDelay,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		PingInterval:     cfg.Stream.PingInterval,
		PongWait:         cfg.Stream.PongWait,
	}, logger)

	unsub := adapter.OnMessage(func(env events.Envelope) {
		evt, err := events.ParseEnvelope(env)
		if err != nil {
			if errors.Is(err, events.ErrUnknownEvent) {
				logger.Debug("unrecognized event ignored", zap.String("type", env.Type))
			} else {
				logger.Warn("bad event payload dropped", zap.String("type", env.Type), zap.Error(err))
			}
			return
		}
		st.Apply(evt)
	})
	defer unsub()

	// Events lost across a reconnect gap are repaired by a full refetch.
	adapter.OnReconnect(func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
		defer cancel()
		_ = st.Refresh(refreshCtx)
	})

	_ = adapter.Connect(ctx) // dial failure schedules its own retry
	defer adapter.Disconnect()

	startCtx, cancel := context.WithTimeout(ctx, cfg.API.Timeout)
	_ = sess.RefreshUser(startCtx)
	loadErr := st.Load(startCtx)
	cancel()

	if opts.NoUI {
		return runHeadless(ctx, st, logger, loadErr)
	}
	return ui.Run(ui.Options{
		Context: ctx,
		Store:   st,
		Session: sess,
		State:   adapter.State,
	})
}

// runHeadless keeps reconciling and logs collection changes; useful for
// watching the stream without a terminal UI.
func runHeadless(ctx context.Context, st *store.Store, logger *zap.Logger, loadErr error) error {
	if loadErr != nil {
		logger.Warn("initial load failed, continuing on stream only", zap.Error(loadErr))
	}
	unsub := st.SubscribeChanges(func() {
		polls := st.Snapshot()
		total := 0
		for _, p := range polls {
			total += p.TotalVotes
		}
		logger.Info("collection changed", zap.Int("polls", len(polls)), zap.Int("total_votes", total))
	})
	defer unsub()

	<-ctx.Done()
	return nil
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	// The TUI owns stdout; logs always go to stderr.
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
