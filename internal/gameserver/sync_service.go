package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/proxsync/internal/game/proximity"
	"github.com/cory-johannsen/proxsync/internal/game/session"
	"github.com/cory-johannsen/proxsync/internal/protocol"
)

// Transport is one bidirectional, message-oriented connection.
//
// ReadFrame blocks until a frame arrives, the peer goes away (io.EOF), or the
// transport is closed. WriteFrame is only ever called from one goroutine.
// Close must be safe to call more than once and must unblock ReadFrame.
type Transport interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

// State is the protocol state of one connection.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// connection is the per-transport bookkeeping of one participant.
type connection struct {
	id        string
	transport Transport
	outbox    *session.Outbox
	limiter   *rate.Limiter

	state     atomic.Int32
	cleanup   sync.Once
	closeOnce sync.Once
}

func (c *connection) State() State { return State(c.state.Load()) }

func (c *connection) setState(s State) { c.state.Store(int32(s)) }

func (c *connection) closeTransport() {
	c.closeOnce.Do(func() {
		_ = c.transport.Close()
	})
}

// SyncService owns the protocol handling for every connected participant.
type SyncService struct {
	registry   *session.Registry
	router     *proximity.Router
	policy     *ChatPolicy
	journal    Journal
	outboxSize int
	logger     *zap.Logger

	newID func() string
	now   func() time.Time

	mu    sync.Mutex
	conns map[string]*connection
}

// NewSyncService creates a SyncService with the given dependencies.
//
// Precondition: registry, router and logger must be non-nil. policy and
// journal may be nil (chat is routed unfiltered; nothing is journaled).
// outboxSize <= 0 selects session.DefaultOutboxSize.
// Postcondition: Returns a ready SyncService.
func NewSyncService(
	registry *session.Registry,
	router *proximity.Router,
	policy *ChatPolicy,
	journal Journal,
	outboxSize int,
	logger *zap.Logger,
) *SyncService {
	if outboxSize <= 0 {
		outboxSize = session.DefaultOutboxSize
	}
	return &SyncService{
		registry:   registry,
		router:     router,
		policy:     policy,
		journal:    journal,
		outboxSize: outboxSize,
		logger:     logger,
		newID:      uuid.NewString,
		now:        time.Now,
		conns:      make(map[string]*connection),
	}
}

// Registry returns the registry this service mutates.
func (s *SyncService) Registry() *session.Registry {
	return s.registry
}

// Router returns the router used for chat delivery.
func (s *SyncService) Router() *proximity.Router {
	return s.router
}

// ConnectionState reports the protocol state of a live connection.
// Connections that have fully finished are no longer tracked and report false.
func (s *SyncService) ConnectionState(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok {
		return StateDisconnected, false
	}
	return c.State(), true
}

// Serve runs the protocol for one connection until it ends.
// Flow:
//  1. Register the participant and prime its outbox with init
//  2. Announce the arrival to everyone else
//  3. Spawn the writer that drains the outbox into the transport
//  4. Read and dispatch inbound frames until the transport ends
//  5. Remove the participant and announce the departure, exactly once
//
// Postcondition: The transport is closed and the participant is no longer
// registered when Serve returns.
func (s *SyncService) Serve(ctx context.Context, t Transport) error {
	c := &connection{id: s.newID(), transport: t}
	c.setState(StateConnecting)
	c.outbox = session.NewOutbox(c.id, s.outboxSize)
	if s.policy != nil {
		c.limiter = s.policy.NewLimiter()
	}

	// Step 1: register and prime
	p, roster, err := s.registry.Add(c.id, c.outbox)
	if err != nil {
		s.logger.Error("registering participant", zap.String("id", c.id), zap.Error(err))
		c.setState(StateDisconnected)
		c.closeTransport()
		return fmt.Errorf("registering participant: %w", err)
	}
	s.track(c)
	defer s.untrack(c.id)

	initFrame, err := protocol.Encode(protocol.TypeInit, protocol.Init{
		PlayerID: c.id,
		Players:  lo.Map(roster, func(q session.Participant, _ int) protocol.PlayerState { return playerState(q) }),
	})
	if err == nil {
		err = c.outbox.Prime(initFrame)
	}
	if err != nil {
		s.logger.Error("sending init", zap.String("id", c.id), zap.Error(err))
		s.disconnect(ctx, c)
		c.closeTransport()
		return fmt.Errorf("sending init: %w", err)
	}
	c.setState(StateActive)

	// Step 2: announce
	s.broadcast(protocol.TypePlayerJoined, playerState(p), c.id)
	s.record(ctx, JournalEvent{Kind: JournalJoin, ParticipantID: c.id, X: p.X, Y: p.Y})
	s.logger.Info("participant connected",
		zap.String("id", c.id),
		zap.Float64("x", p.X),
		zap.Float64("y", p.Y),
		zap.Int("players", len(roster)),
	)

	// Step 3: writer
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopClose := context.AfterFunc(ctx, c.closeTransport)
	defer stopClose()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.forwardFrames(ctx, c); err != nil {
			s.logger.Debug("writer stopped", zap.String("id", c.id), zap.Error(err))
			cancel()
		}
	}()

	// Step 4: reader
	err = s.readLoop(ctx, c)

	// Step 5: cleanup
	cancel()
	s.disconnect(ctx, c)
	c.closeTransport()
	wg.Wait()

	return err
}

// readLoop dispatches inbound frames sequentially until the transport ends.
func (s *SyncService) readLoop(ctx context.Context, c *connection) error {
	for {
		frame, err := c.transport.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading frame from %s: %w", c.id, err)
		}
		if c.State() != StateActive {
			return nil
		}
		s.dispatch(ctx, c, frame)
	}
}

// forwardFrames drains the outbox into the transport in FIFO order.
func (s *SyncService) forwardFrames(ctx context.Context, c *connection) error {
	frames := c.outbox.Frames()
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := c.transport.WriteFrame(frame); err != nil {
				return fmt.Errorf("writing frame to %s: %w", c.id, err)
			}
		}
	}
}

// dispatch routes one decoded frame to its handler.
func (s *SyncService) dispatch(ctx context.Context, c *connection, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		s.logger.Debug("dropping frame", zap.String("id", c.id), zap.Error(err))
		return
	}
	switch env.Type {
	case protocol.TypeMove:
		s.handleMove(c, env)
	case protocol.TypeChatMessage:
		s.handleChat(ctx, c, env)
	default:
		s.logger.Debug("dropping frame",
			zap.String("id", c.id),
			zap.Error(fmt.Errorf("%w: %q", protocol.ErrUnknownType, env.Type)),
		)
	}
}

func (s *SyncService) handleMove(c *connection, env protocol.Envelope) {
	var req protocol.Move
	if err := env.DecodeData(&req); err != nil {
		s.logger.Debug("dropping move", zap.String("id", c.id), zap.Error(err))
		return
	}
	pos, err := req.Position()
	if err != nil {
		s.logger.Debug("dropping move", zap.String("id", c.id), zap.Error(err))
		return
	}
	if !pos.IsFinite() {
		s.logger.Debug("dropping non-finite move", zap.String("id", c.id))
		return
	}
	if !s.registry.Update(c.id, pos) {
		return
	}
	s.broadcast(protocol.TypePlayerMoved, protocol.PlayerState{ID: c.id, X: pos.X, Y: pos.Y})
}

func (s *SyncService) handleChat(ctx context.Context, c *connection, env protocol.Envelope) {
	var req protocol.ChatRequest
	if err := env.DecodeData(&req); err != nil {
		s.logger.Debug("dropping chat", zap.String("id", c.id), zap.Error(err))
		return
	}
	sender, ok := s.registry.Get(c.id)
	if !ok {
		return
	}

	message := req.Message
	if s.policy != nil {
		var err error
		message, err = s.policy.Apply(c.limiter, req.Message)
		if err != nil {
			s.logger.Debug("chat rejected", zap.String("id", c.id), zap.Error(err))
			s.deliver(c.outbox, protocol.TypeError, protocol.ErrorEvent{Message: err.Error()})
			return
		}
	}
	s.routeChat(ctx, c, sender, message)
}

// routeChat delivers message to every participant within range of sender,
// then echoes it to the sender.
func (s *SyncService) routeChat(ctx context.Context, c *connection, sender session.Participant, message string) {
	recipients := s.router.Recipients(sender.ID, sender.Position(), s.registry.Snapshot())
	frame, err := protocol.Encode(protocol.TypeChatMessage, protocol.ChatEvent{
		SenderID:  sender.ID,
		Message:   message,
		Timestamp: s.now().UnixMilli(),
	})
	if err != nil {
		s.logger.Error("encoding chat", zap.String("id", c.id), zap.Error(err))
		return
	}

	outboxes := s.registry.Outboxes(sender.ID)
	for _, id := range recipients {
		if ob, ok := outboxes[id]; ok {
			s.push(ob, protocol.TypeChatMessage, frame)
		}
	}
	s.push(c.outbox, protocol.TypeChatMessage, frame)

	s.record(ctx, JournalEvent{
		Kind:          JournalChat,
		ParticipantID: sender.ID,
		X:             sender.X,
		Y:             sender.Y,
		Message:       message,
		Recipients:    recipients,
	})
}

// disconnect removes the participant and announces the departure. Only the
// first call for a connection has any effect.
func (s *SyncService) disconnect(ctx context.Context, c *connection) {
	c.cleanup.Do(func() {
		c.setState(StateDisconnected)
		p, ok := s.registry.Remove(c.id)
		if !ok {
			return
		}
		s.broadcast(protocol.TypePlayerLeft, protocol.PlayerLeft{ID: c.id})
		s.record(context.WithoutCancel(ctx), JournalEvent{Kind: JournalLeave, ParticipantID: c.id, X: p.X, Y: p.Y})
		s.logger.Info("participant disconnected", zap.String("id", c.id))
	})
}

// broadcast encodes one frame and pushes it to every live outbox except
// those in exclude. A failed push affects only that recipient.
func (s *SyncService) broadcast(msgType string, payload any, exclude ...string) {
	frame, err := protocol.Encode(msgType, payload)
	if err != nil {
		s.logger.Error("encoding broadcast", zap.String("type", msgType), zap.Error(err))
		return
	}
	for _, ob := range s.registry.Outboxes(exclude...) {
		s.push(ob, msgType, frame)
	}
}

// deliver encodes one frame for a single outbox.
func (s *SyncService) deliver(ob *session.Outbox, msgType string, payload any) {
	frame, err := protocol.Encode(msgType, payload)
	if err != nil {
		s.logger.Error("encoding frame", zap.String("type", msgType), zap.Error(err))
		return
	}
	s.push(ob, msgType, frame)
}

func (s *SyncService) push(ob *session.Outbox, msgType string, frame []byte) {
	if err := ob.Push(frame); err != nil {
		s.logger.Warn("dropping frame for recipient",
			zap.String("recipient", ob.ID()),
			zap.String("type", msgType),
			zap.Error(err),
		)
	}
}

func (s *SyncService) record(ctx context.Context, ev JournalEvent) {
	if s.journal == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	if err := s.journal.Record(ctx, ev); err != nil {
		s.logger.Warn("journal record failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("id", ev.ParticipantID),
			zap.Error(err),
		)
	}
}

func (s *SyncService) track(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
}

func (s *SyncService) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

func playerState(p session.Participant) protocol.PlayerState {
	return protocol.PlayerState{ID: p.ID, X: p.X, Y: p.Y}
}

// Roster returns the current participants as wire states, in join order.
func (s *SyncService) Roster() []protocol.PlayerState {
	return lo.Map(s.registry.Snapshot(), func(p session.Participant, _ int) protocol.PlayerState {
		return playerState(p)
	})
}
