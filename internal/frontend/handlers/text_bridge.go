// Package handlers bridges line-oriented Telnet sessions onto the sync
// protocol: commands become protocol frames and server frames become text.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/proxsync/internal/frontend/telnet"
	"github.com/cory-johannsen/proxsync/internal/game/command"
	"github.com/cory-johannsen/proxsync/internal/gameserver"
	"github.com/cory-johannsen/proxsync/internal/protocol"
)

// Prompt is written after every server event and local reply.
var Prompt = telnet.Colorize(telnet.BrightCyan, "> ")

// SessionServer runs one participant over a transport. It is satisfied by
// the in-process sync service and by the gRPC relay.
type SessionServer interface {
	Serve(ctx context.Context, t gameserver.Transport) error
}

// TextBridge implements telnet.SessionHandler by running each Telnet
// connection as one participant of a SessionServer.
type TextBridge struct {
	server   SessionServer
	commands *command.Registry
	logger   *zap.Logger
}

// NewTextBridge creates a bridge using the built-in command set.
//
// Precondition: server and logger must be non-nil.
func NewTextBridge(server SessionServer, logger *zap.Logger) *TextBridge {
	return &TextBridge{
		server:   server,
		commands: command.DefaultRegistry(),
		logger:   logger,
	}
}

// HandleSession implements telnet.SessionHandler.
//
// Postcondition: Returns when the participant disconnects; nil on quit or EOF.
func (b *TextBridge) HandleSession(ctx context.Context, conn *telnet.Conn) error {
	t := &textTransport{bridge: b, conn: conn}
	return b.server.Serve(ctx, t)
}

// textTransport adapts a Telnet line connection to gameserver.Transport.
// ReadFrame runs on the session's reader goroutine and WriteFrame on its
// writer goroutine; conn serializes the writes.
//
// The roster answering who is rebuilt from the frames this client has
// received, so it matches what the client has been told.
type textTransport struct {
	bridge *TextBridge
	conn   *telnet.Conn

	mu     sync.Mutex
	self   string
	roster []protocol.PlayerState
}

// ReadFrame reads lines until one translates into a protocol frame. Local
// commands are answered in place.
func (t *textTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := t.conn.ReadLine()
		if err != nil {
			return nil, err
		}

		frame, reply, err := t.translate(line)
		switch {
		case errors.Is(err, io.EOF):
			_ = t.conn.WriteLine(telnet.Colorize(telnet.Cyan, "Goodbye."))
			return nil, io.EOF
		case err != nil:
			t.reply(RenderError(err.Error()))
		case frame != nil:
			return frame, nil
		default:
			t.reply(reply)
		}
	}
}

// translate turns one input line into a protocol frame, a local reply, or
// io.EOF for quit.
func (t *textTransport) translate(line string) ([]byte, string, error) {
	parsed := command.Parse(line)
	if parsed.Command == "" {
		return nil, "", nil
	}
	cmd, ok := t.bridge.commands.Resolve(parsed.Command)
	if !ok {
		return nil, "", fmt.Errorf("unknown command %q, type help for a list", parsed.Command)
	}

	switch cmd.Handler {
	case command.HandlerMove:
		pos, err := command.ParsePosition(parsed.Args)
		if err != nil {
			return nil, "", fmt.Errorf("%w (usage: %s)", err, cmd.Usage)
		}
		frame, err := protocol.Encode(protocol.TypeMove, protocol.NewMove(pos))
		return frame, "", err

	case command.HandlerSay:
		if parsed.RawArgs == "" {
			return nil, "", errors.New("say what?")
		}
		frame, err := protocol.Encode(protocol.TypeChatMessage, protocol.ChatRequest{Message: parsed.RawArgs})
		return frame, "", err

	case command.HandlerWho:
		self, roster := t.view()
		return nil, RenderPlayerList(roster, self), nil

	case command.HandlerHelp:
		return nil, RenderHelp(t.bridge.commands.Commands()), nil

	case command.HandlerQuit:
		return nil, "", io.EOF

	default:
		return nil, "", fmt.Errorf("command %q has no handler", cmd.Name)
	}
}

// WriteFrame renders one server frame as text. Frames without a text
// rendering are skipped.
func (t *textTransport) WriteFrame(frame []byte) error {
	t.track(frame)

	self, _ := t.view()
	text, ok := RenderFrame(frame, self)
	if !ok {
		t.bridge.logger.Debug("no text rendering for frame", zap.ByteString("frame", frame))
		return nil
	}
	if err := t.conn.WriteLine("\r" + text); err != nil {
		return err
	}
	return t.conn.WritePrompt(Prompt)
}

func (t *textTransport) Close() error {
	return t.conn.Close()
}

func (t *textTransport) reply(text string) {
	if text != "" {
		_ = t.conn.WriteLine(text)
	}
	_ = t.conn.WritePrompt(Prompt)
}

// track applies a server frame to the local roster view.
func (t *textTransport) track(frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	switch env.Type {
	case protocol.TypeInit:
		var welcome protocol.Init
		if env.DecodeData(&welcome) == nil {
			t.self = welcome.PlayerID
			t.roster = welcome.Players
		}
	case protocol.TypePlayerJoined:
		var p protocol.PlayerState
		if env.DecodeData(&p) == nil {
			t.roster = append(t.roster, p)
		}
	case protocol.TypePlayerMoved:
		var p protocol.PlayerState
		if env.DecodeData(&p) == nil {
			for i := range t.roster {
				if t.roster[i].ID == p.ID {
					t.roster[i] = p
				}
			}
		}
	case protocol.TypePlayerLeft:
		var p protocol.PlayerLeft
		if env.DecodeData(&p) == nil {
			t.roster = slices.DeleteFunc(t.roster, func(q protocol.PlayerState) bool { return q.ID == p.ID })
		}
	}
}

// view returns the participant's own ID and a copy of the roster view.
func (t *textTransport) view() (string, []protocol.PlayerState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.self, slices.Clone(t.roster)
}
