package handlers

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/proxsync/internal/frontend/telnet"
	"github.com/cory-johannsen/proxsync/internal/game/command"
	"github.com/cory-johannsen/proxsync/internal/protocol"
)

// RenderFrame formats one server envelope as colored Telnet text from the
// point of view of participant self.
//
// Postcondition: Returns ("", false) for frames that cannot be decoded or
// have no text rendering.
func RenderFrame(frame []byte, self string) (string, bool) {
	env, err := protocol.Decode(frame)
	if err != nil {
		return "", false
	}

	switch env.Type {
	case protocol.TypeInit:
		var welcome protocol.Init
		if env.DecodeData(&welcome) != nil {
			return "", false
		}
		return RenderInit(welcome), true

	case protocol.TypePlayerJoined:
		var p protocol.PlayerState
		if env.DecodeData(&p) != nil {
			return "", false
		}
		return telnet.Colorf(telnet.Green, "%s has arrived at %s.", p.ID, coords(p.X, p.Y)), true

	case protocol.TypePlayerMoved:
		var p protocol.PlayerState
		if env.DecodeData(&p) != nil {
			return "", false
		}
		if p.ID == self {
			return telnet.Colorf(telnet.Cyan, "You move to %s.", coords(p.X, p.Y)), true
		}
		return telnet.Colorf(telnet.Dim, "%s moves to %s.", p.ID, coords(p.X, p.Y)), true

	case protocol.TypePlayerLeft:
		var p protocol.PlayerLeft
		if env.DecodeData(&p) != nil {
			return "", false
		}
		return telnet.Colorf(telnet.Yellow, "%s has left.", p.ID), true

	case protocol.TypeChatMessage:
		var ev protocol.ChatEvent
		if env.DecodeData(&ev) != nil {
			return "", false
		}
		if ev.SenderID == self {
			return telnet.Colorf(telnet.White, "You say: %s", ev.Message), true
		}
		return telnet.Colorf(telnet.BrightWhite, "%s says: %s", ev.SenderID, ev.Message), true

	case protocol.TypeError:
		var ev protocol.ErrorEvent
		if env.DecodeData(&ev) != nil {
			return "", false
		}
		return RenderError(ev.Message), true

	default:
		return "", false
	}
}

// RenderInit formats the welcome banner shown after connecting.
func RenderInit(welcome protocol.Init) string {
	var b strings.Builder
	b.WriteString(telnet.Colorf(telnet.BrightYellow, "Welcome, %s.", welcome.PlayerID))
	b.WriteString("\r\n")
	for _, p := range welcome.Players {
		if p.ID == welcome.PlayerID {
			b.WriteString(telnet.Colorf(telnet.Cyan, "You stand at %s.", coords(p.X, p.Y)))
			b.WriteString("\r\n")
		}
	}
	b.WriteString(RenderPlayerList(welcome.Players, welcome.PlayerID))
	return b.String()
}

// RenderPlayerList formats the roster for the who command.
func RenderPlayerList(players []protocol.PlayerState, self string) string {
	if len(players) == 0 {
		return telnet.Colorize(telnet.Dim, "Nobody is connected.")
	}
	var b strings.Builder
	b.WriteString(telnet.Colorf(telnet.Green, "Players connected: %d", len(players)))
	for _, p := range players {
		label := p.ID
		if p.ID == self {
			label += " (you)"
		}
		b.WriteString(fmt.Sprintf("\r\n  %s%-40s%s %s",
			telnet.BrightCyan, label, telnet.Reset, coords(p.X, p.Y)))
	}
	return b.String()
}

// RenderHelp formats the command list.
func RenderHelp(cmds []*command.Command) string {
	var b strings.Builder
	b.WriteString(telnet.Colorize(telnet.BrightWhite, "=== Commands ==="))
	for _, c := range cmds {
		usage := c.Usage
		if len(c.Aliases) > 0 {
			usage += " (" + strings.Join(c.Aliases, ", ") + ")"
		}
		b.WriteString(fmt.Sprintf("\r\n  %s%-28s%s %s", telnet.BrightCyan, usage, telnet.Reset, c.Help))
	}
	return b.String()
}

// RenderError formats an error message as red Telnet text.
func RenderError(msg string) string {
	return telnet.Colorize(telnet.Red, msg)
}

func coords(x, y float64) string {
	return fmt.Sprintf("(%g, %g)", x, y)
}
