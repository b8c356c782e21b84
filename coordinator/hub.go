package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/absmach/splitfed/pkg/channel"
	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/transport"
)

// Hub is the coordinator's view of the registered peers, independent of
// how messages reach them.
type Hub interface {
	// Register blocks until every expected peer has registered and returns
	// the peer identities in registration order.
	Register(ctx context.Context, expected []string) ([]string, error)
	// Broadcast delivers msg to every registered peer.
	Broadcast(ctx context.Context, msg message.Message) error
	// Collect returns one message of the given kind from every registered
	// peer, keyed by peer.
	Collect(ctx context.Context, kind message.Kind) (map[string]message.Message, error)
	Close() error
}

var (
	_ Hub = (*directHub)(nil)
	_ Hub = (*sharedHub)(nil)
)

// directHub owns one connection per peer, as produced by the stream and
// datagram transports.
type directHub struct {
	acceptor transport.Acceptor
	opts     []channel.Option
	logger   *slog.Logger
	sessions []*PeerSession
}

func NewDirectHub(acceptor transport.Acceptor, logger *slog.Logger, opts ...channel.Option) Hub {
	return &directHub{
		acceptor: acceptor,
		opts:     opts,
		logger:   logger,
	}
}

func (h *directHub) Register(ctx context.Context, expected []string) ([]string, error) {
	for len(h.sessions) < len(expected) {
		conn, err := h.acceptor.Accept(ctx)
		if err != nil {
			return h.peers(), registrationError(ctx, err, len(h.sessions), len(expected))
		}

		ch := channel.New(conn, h.opts...)
		msg, err := ch.Expect(ctx, message.KindRegister)
		if err != nil {
			ch.Close()
			if ctx.Err() != nil {
				return h.peers(), registrationError(ctx, err, len(h.sessions), len(expected))
			}
			h.logger.Warn("dropping connection without registration",
				slog.String("remote", conn.RemoteID()), slog.Any("error", err))

			continue
		}

		reg, ok := msg.(message.Register)
		switch {
		case !ok:
			h.logger.Warn("connection finished before registering", slog.String("remote", conn.RemoteID()))
			ch.Close()

			continue
		case !slices.Contains(expected, reg.PeerID):
			h.logger.Warn("rejecting unknown peer", slog.String("peer_id", reg.PeerID), slog.String("remote", conn.RemoteID()))
			ch.Close()

			continue
		case slices.ContainsFunc(h.sessions, func(s *PeerSession) bool { return s.ID == reg.PeerID }):
			h.logger.Warn("ignoring duplicate registration", slog.String("peer_id", reg.PeerID), slog.String("remote", conn.RemoteID()))
			ch.Close()

			continue
		}

		h.sessions = append(h.sessions, &PeerSession{ID: reg.PeerID, Channel: ch, RegisteredAt: time.Now()})
		h.logger.Info("peer registered",
			slog.String("peer_id", reg.PeerID),
			slog.String("remote", conn.RemoteID()),
			slog.Int("registered", len(h.sessions)),
			slog.Int("expected", len(expected)),
		)
	}

	return h.peers(), nil
}

func (h *directHub) Broadcast(ctx context.Context, msg message.Message) error {
	for _, s := range h.sessions {
		if err := s.Channel.Send(ctx, msg); err != nil {
			return fmt.Errorf("failed to send %s to %s: %w", msg.Kind(), s.ID, err)
		}
	}

	return nil
}

// Collect waits on the peers one at a time in registration order. Peers
// that finish early simply have their message read later.
func (h *directHub) Collect(ctx context.Context, kind message.Kind) (map[string]message.Message, error) {
	out := make(map[string]message.Message, len(h.sessions))
	for _, s := range h.sessions {
		msg, err := s.Channel.Expect(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("peer %s: %w", s.ID, err)
		}
		if msg.Kind() == message.KindFinish {
			return nil, fmt.Errorf("%w: peer %s", pkgerrors.ErrFinished, s.ID)
		}
		if id, ok := message.PeerOf(msg); ok && id != s.ID {
			h.logger.Warn("peer reported a different identity",
				slog.String("peer_id", s.ID), slog.String("reported", id))
		}
		out[s.ID] = msg
	}

	return out, nil
}

func (h *directHub) Close() error {
	var errs []error
	for _, s := range h.sessions {
		if err := s.Channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.acceptor.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (h *directHub) peers() []string {
	ids := make([]string, len(h.sessions))
	for i, s := range h.sessions {
		ids[i] = s.ID
	}

	return ids
}

// sharedHub talks to every peer over one broker connection. Peers are told
// apart by the identity carried in their messages.
type sharedHub struct {
	ch     *channel.Channel
	logger *slog.Logger
	peers  []string
}

func NewSharedHub(conn transport.Conn, logger *slog.Logger, opts ...channel.Option) Hub {
	return &sharedHub{
		ch:     channel.New(conn, opts...),
		logger: logger,
	}
}

func (h *sharedHub) Register(ctx context.Context, expected []string) ([]string, error) {
	for len(h.peers) < len(expected) {
		msg, err := h.ch.Await(ctx, message.KindRegister)
		if err != nil {
			return slices.Clone(h.peers), registrationError(ctx, err, len(h.peers), len(expected))
		}

		reg, ok := msg.(message.Register)
		switch {
		case !ok:
			h.logger.Warn("ignoring finish during registration")

			continue
		case !slices.Contains(expected, reg.PeerID):
			h.logger.Warn("ignoring unknown peer", slog.String("peer_id", reg.PeerID))

			continue
		case slices.Contains(h.peers, reg.PeerID):
			h.logger.Debug("ignoring duplicate registration", slog.String("peer_id", reg.PeerID))

			continue
		}

		h.peers = append(h.peers, reg.PeerID)
		h.logger.Info("peer registered",
			slog.String("peer_id", reg.PeerID),
			slog.Int("registered", len(h.peers)),
			slog.Int("expected", len(expected)),
		)
	}

	return slices.Clone(h.peers), nil
}

func (h *sharedHub) Broadcast(ctx context.Context, msg message.Message) error {
	if err := h.ch.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Kind(), err)
	}

	return nil
}

// Collect consumes messages of the given kind until every registered peer
// has been heard from. Messages of other kinds stay queued for later
// phases.
func (h *sharedHub) Collect(ctx context.Context, kind message.Kind) (map[string]message.Message, error) {
	out := make(map[string]message.Message, len(h.peers))
	for len(out) < len(h.peers) {
		msg, err := h.ch.Await(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("waiting for %s from %d of %d peers: %w", kind, len(h.peers)-len(out), len(h.peers), err)
		}
		if msg.Kind() == message.KindFinish {
			return nil, pkgerrors.ErrFinished
		}

		id, _ := message.PeerOf(msg)
		if !slices.Contains(h.peers, id) {
			h.logger.Warn("ignoring message from unregistered peer", slog.String("kind", kind.String()), slog.String("peer_id", id))

			continue
		}
		if _, ok := out[id]; ok {
			h.logger.Debug("replacing repeated message", slog.String("kind", kind.String()), slog.String("peer_id", id))
		}
		out[id] = msg
	}

	return out, nil
}

func (h *sharedHub) Close() error {
	return h.ch.Close()
}

func registrationError(ctx context.Context, err error, registered, expected int) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %d of %d peers registered", pkgerrors.ErrRegistrationTimeout, registered, expected)
	}

	return err
}
