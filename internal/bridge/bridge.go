// Package bridge wires the connection session, the vault synchronizer, and
// the agent dispatcher into one lifecycle. It owns no protocol logic itself:
// inbound conversational frames go to the dispatcher, sync frames to the
// syncer, and everything outbound flows through the session's send.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jamesshedden/clawcontrol-openclaw/internal/config"
	"github.com/jamesshedden/clawcontrol-openclaw/internal/session"
	"github.com/jamesshedden/clawcontrol-openclaw/internal/vault"
	"github.com/jamesshedden/clawcontrol-openclaw/pkg/protocol"
	"github.com/jamesshedden/clawcontrol-openclaw/pkg/retry"
)

// Emitter is the outbound vocabulary available to a dispatcher.
type Emitter interface {
	SendText(id, threadID, content string)
	SendTyping(id, threadID string)
	SendDone(id, threadID string)
	SendError(id, threadID, message string)
}

// Dispatcher turns an inbound user message into agent activity, replying
// through the emitter. Implementations live outside this module.
type Dispatcher interface {
	HandleMessage(ctx context.Context, msg protocol.UserMessage, emit Emitter)
}

// Bridge owns the session and syncer lifecycles.
type Bridge struct {
	cfg        *config.Config
	log        *zap.Logger
	session    *session.Session
	syncer     *vault.Syncer
	dispatcher Dispatcher

	pulseDone chan struct{}
	stopOnce  sync.Once
}

// New builds a bridge from configuration and wires the components together.
func New(cfg *config.Config, dispatcher Dispatcher, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}

	sess := session.New(session.Config{
		BaseURL:        cfg.ServerURL,
		Token:          cfg.Token,
		ReconnectDelay: cfg.ReconnectDelay,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         log.Named("session"),
	})
	syncer := vault.New(vault.Config{
		Root:           cfg.VaultDir,
		Send:           sess.Send,
		DebounceWindow: cfg.DebounceWindow,
		SuppressWindow: cfg.SuppressWindow,
		Logger:         log.Named("vault"),
	})

	b := &Bridge{
		cfg:        cfg,
		log:        log,
		session:    sess,
		syncer:     syncer,
		dispatcher: dispatcher,
		pulseDone:  make(chan struct{}),
	}

	sess.OnUserMessage(b.handleUserMessage)
	sess.OnSyncPush(func(push protocol.FileSyncPush) {
		if err := syncer.HandleServerPush(push); err != nil {
			log.Error("apply server push", zap.String("path", push.Path), zap.Error(err))
		}
	})
	sess.OnSnapshotAck(syncer.HandleSnapshotAck)
	sess.OnThreadList(func(threads []protocol.Thread) {
		log.Debug("thread list updated", zap.Int("threads", len(threads)))
	})

	return b
}

// Session exposes the connection session, e.g. for thread queries.
func (b *Bridge) Session() *session.Session {
	return b.session
}

// Run connects, waits for the session to come up, starts the synchronizer,
// and blocks until the context is done. The synchronizer is started once per
// run; the session reconnects underneath it on its own.
func (b *Bridge) Run(ctx context.Context) error {
	b.session.Connect()

	err := retry.Do(ctx, retry.Config{
		MaxAttempts: 0, // the session retries indefinitely; so do we
		InitialWait: 250 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
	}, func() error {
		if b.session.IsConnected() {
			return nil
		}
		return retry.Retryable(errors.New("session not yet connected"))
	})
	if err != nil {
		b.shutdown()
		return fmt.Errorf("await connection: %w", err)
	}

	if err := b.syncer.Start(); err != nil {
		b.shutdown()
		return fmt.Errorf("start synchronizer: %w", err)
	}
	b.log.Info("bridge running", zap.String("vault", b.cfg.VaultDir))

	go b.pulseLoop()

	<-ctx.Done()
	b.shutdown()
	return ctx.Err()
}

func (b *Bridge) shutdown() {
	b.stopOnce.Do(func() {
		close(b.pulseDone)
		b.syncer.Stop()
		b.session.Disconnect()
		b.log.Info("bridge stopped")
	})
}

// pulseLoop emits a periodic liveness frame while connected.
func (b *Bridge) pulseLoop() {
	if b.cfg.PulseInterval <= 0 {
		return
	}
	ticker := time.NewTicker(b.cfg.PulseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.pulseDone:
			return
		case <-ticker.C:
			if b.session.IsConnected() {
				b.session.SendPulse("alive")
			}
		}
	}
}

func (b *Bridge) handleUserMessage(msg protocol.UserMessage) {
	if b.dispatcher == nil {
		b.log.Warn("user message received but no dispatcher attached", zap.String("id", msg.ID))
		b.session.SendError(msg.ID, msg.ThreadID, "no agent attached")
		return
	}
	go b.dispatcher.HandleMessage(context.Background(), msg, b.session)
}
