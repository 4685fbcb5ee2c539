package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules installs the read-only session module into L:
//
//	session.count()   -> number of connected participants
//	session.players() -> array of {id=, x=, y=} in join order
//	session.log(msg)  -> writes msg to the server log at info level
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: session global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"count":   m.luaCount,
		"players": m.luaPlayers,
		"log":     m.luaLog,
	})
	L.SetGlobal("session", mod)
}

func (m *Manager) luaCount(L *lua.LState) int {
	n := 0
	if m.Count != nil {
		n = m.Count()
	}
	L.Push(lua.LNumber(n))
	return 1
}

func (m *Manager) luaPlayers(L *lua.LState) int {
	list := L.NewTable()
	if m.Players != nil {
		for _, p := range m.Players() {
			entry := L.NewTable()
			entry.RawSetString("id", lua.LString(p.ID))
			entry.RawSetString("x", lua.LNumber(p.X))
			entry.RawSetString("y", lua.LNumber(p.Y))
			list.Append(entry)
		}
	}
	L.Push(list)
	return 1
}

func (m *Manager) luaLog(L *lua.LState) int {
	m.logger.Info("script", zap.String("message", L.CheckString(1)))
	return 0
}
