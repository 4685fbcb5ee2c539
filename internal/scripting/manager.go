package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// TickHook is the Lua global invoked once per simulation tick.
const TickHook = "on_tick"

// PlayerInfo is a snapshot of one participant passed to Lua.
type PlayerInfo struct {
	ID string
	X  float64
	Y  float64
}

// Manager owns one sandboxed LState loaded from a script directory and
// dispatches hooks into it.
//
// An LState is single-threaded; every call into the VM holds mu.
type Manager struct {
	mu     sync.Mutex
	state  *lua.LState
	limit  int
	logger *zap.Logger

	// Injected after construction. nil = the session module reports nothing.
	Count   func() int
	Players func() []PlayerInfo
}

// NewManager creates a Manager with no VM loaded.
//
// Precondition: logger must be non-nil; instLimit >= 0 (0 = default).
// Postcondition: Returns a non-nil Manager.
func NewManager(instLimit int, logger *zap.Logger) *Manager {
	return &Manager{limit: instLimit, logger: logger}
}

// Load creates a sandboxed VM, registers the session module, then executes
// every *.lua file in scriptDir in lexicographic order. A previously loaded
// VM is replaced only when the new one loads cleanly.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: Returns the number of files loaded or a non-nil error.
func (m *Manager) Load(scriptDir string) (int, error) {
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return 0, fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	L := NewSandboxedState()
	m.RegisterModules(L)
	for _, path := range luaFiles {
		path := path
		err := RunLimited(L, m.limit, func() error { return L.DoFile(path) })
		if err != nil {
			L.Close()
			return 0, fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}

	m.mu.Lock()
	old := m.state
	m.state = L
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return len(luaFiles), nil
}

// Loaded reports whether a VM is installed.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != nil
}

// CallHook calls the named Lua global function. Returns (LNil, nil) if no VM
// is loaded or the hook is not defined. Lua runtime errors, including an
// exhausted instruction budget, are logged at Warn level and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(hook string, args ...lua.LValue) (lua.LValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	L := m.state
	if L == nil {
		return lua.LNil, nil
	}
	fn := L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	err := RunLimited(L, m.limit, func() error {
		return L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	})
	if err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// OnTick calls the on_tick hook with the tick number. Its signature matches
// the scheduler's callback type.
func (m *Manager) OnTick(tick uint64) {
	_, _ = m.CallHook(TickHook, lua.LNumber(tick))
}

// Close releases the VM.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != nil {
		m.state.Close()
		m.state = nil
	}
}
