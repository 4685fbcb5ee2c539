// Package command provides the text command registry and parser used by
// line-oriented clients.
package command

// Categories for organizing commands.
const (
	CategoryMovement      = "movement"
	CategoryCommunication = "communication"
	CategorySystem        = "system"
)

// Handler identifiers mapping commands to protocol messages or local replies.
const (
	HandlerMove = "move"
	HandlerSay  = "say"
	HandlerWho  = "who"
	HandlerHelp = "help"
	HandlerQuit = "quit"
)

// Command defines a client-invocable text command.
type Command struct {
	// Name is the canonical command name.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Usage shows the argument shape, e.g. "move <x> <y>".
	Usage string
	// Help is the short help text displayed to clients.
	Help string
	// Category groups the command.
	Category string
	// Handler maps to the protocol message type or local handler.
	Handler string
}

// BuiltinCommands returns every built-in text command.
func BuiltinCommands() []Command {
	return []Command{
		{Name: "move", Aliases: []string{"m", "goto"}, Usage: "move <x> <y>", Help: "Move to a position", Category: CategoryMovement, Handler: HandlerMove},

		{Name: "say", Aliases: []string{"'"}, Usage: "say <text>", Help: "Say something to everyone nearby", Category: CategoryCommunication, Handler: HandlerSay},

		{Name: "who", Aliases: []string{"w"}, Usage: "who", Help: "List connected players and positions", Category: CategorySystem, Handler: HandlerWho},
		{Name: "help", Aliases: []string{"?"}, Usage: "help", Help: "Show available commands", Category: CategorySystem, Handler: HandlerHelp},
		{Name: "quit", Aliases: []string{"exit"}, Usage: "quit", Help: "Disconnect", Category: CategorySystem, Handler: HandlerQuit},
	}
}
