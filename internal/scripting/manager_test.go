package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/proxsync/internal/scripting"
)

func newTestManager(t testing.TB, limit int) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	mgr := scripting.NewManager(limit, zap.New(core))
	t.Cleanup(mgr.Close)
	return mgr, logs
}

func writeTempLua(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0644))
	}
	return dir
}

func TestManager_Load_CallsHook(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	dir := writeTempLua(t, map[string]string{"hooks.lua": `
		function test_hook(a, b)
			return a + b
		end
	`})
	n, err := mgr.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, mgr.Loaded())

	ret, err := mgr.CallHook("test_hook", lua.LNumber(3), lua.LNumber(4))
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(7), ret)
}

func TestManager_Load_LexicographicOrder(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	dir := writeTempLua(t, map[string]string{
		"c.lua":     `function get_order() return order end`,
		"b.lua":     `order = order .. "b"`,
		"a.lua":     `order = "a"`,
		"notes.txt": `order = "ignored"`,
	})
	n, err := mgr.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ret, err := mgr.CallHook("get_order")
	require.NoError(t, err)
	assert.Equal(t, lua.LString("ab"), ret)
}

func TestManager_CallHook_MissingHook_NoOp(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	_, err := mgr.Load(writeTempLua(t, map[string]string{"empty.lua": `-- no functions`}))
	require.NoError(t, err)
	ret, err := mgr.CallHook("nonexistent_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
}

func TestManager_CallHook_NotLoaded(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	assert.False(t, mgr.Loaded())
	ret, err := mgr.CallHook(scripting.TickHook, lua.LNumber(1))
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	mgr.OnTick(1)
}

func TestManager_CallHook_RuntimeErrorLoggedNotPropagated(t *testing.T) {
	mgr, logs := newTestManager(t, 0)
	_, err := mgr.Load(writeTempLua(t, map[string]string{"bad.lua": `function explode() error("boom") end`}))
	require.NoError(t, err)

	ret, err := mgr.CallHook("explode")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.Equal(t, 1, logs.FilterMessage("scripting: Lua runtime error").Len())
}

func TestManager_CallHook_RunawayHookIsStopped(t *testing.T) {
	mgr, logs := newTestManager(t, 500)
	_, err := mgr.Load(writeTempLua(t, map[string]string{"spin.lua": `
		function on_tick(tick) while true do end end
		function ok() return 1 end
	`}))
	require.NoError(t, err)

	mgr.OnTick(1)
	assert.Equal(t, 1, logs.FilterMessage("scripting: Lua runtime error").Len())

	ret, err := mgr.CallHook("ok")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(1), ret)
}

func TestManager_Load_Errors(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	_, err := mgr.Load("/nonexistent/scripts")
	assert.Error(t, err)

	_, err = mgr.Load(writeTempLua(t, map[string]string{"syntax.lua": `function (`}))
	assert.Error(t, err)
	assert.False(t, mgr.Loaded())
}

func TestManager_Load_FailureKeepsPreviousVM(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	_, err := mgr.Load(writeTempLua(t, map[string]string{"v1.lua": `function version() return 1 end`}))
	require.NoError(t, err)

	_, err = mgr.Load(writeTempLua(t, map[string]string{"v2.lua": `function version( return 2 end`}))
	require.Error(t, err)

	ret, err := mgr.CallHook("version")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(1), ret)
}

func TestManager_SessionModule(t *testing.T) {
	mgr, logs := newTestManager(t, 0)
	mgr.Count = func() int { return 2 }
	mgr.Players = func() []scripting.PlayerInfo {
		return []scripting.PlayerInfo{{ID: "a", X: 1, Y: 2}, {ID: "b", X: 3, Y: 4}}
	}
	_, err := mgr.Load(writeTempLua(t, map[string]string{"tick.lua": `
		last_tick = 0
		function on_tick(tick)
			last_tick = tick
			local players = session.players()
			session.log("tick " .. tick .. " players " .. session.count())
			return players[2].id .. ":" .. players[2].x .. "," .. players[2].y
		end
		function get_last() return last_tick end
	`}))
	require.NoError(t, err)

	ret, err := mgr.CallHook(scripting.TickHook, lua.LNumber(7))
	require.NoError(t, err)
	assert.Equal(t, lua.LString("b:3,4"), ret)

	mgr.OnTick(8)
	last, err := mgr.CallHook("get_last")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(8), last)

	require.Equal(t, 2, logs.FilterMessage("script").Len())
	assert.Equal(t, "tick 7 players 2", logs.FilterMessage("script").All()[0].ContextMap()["message"])
}

func TestManager_SessionModuleWithoutCallbacks(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	_, err := mgr.Load(writeTempLua(t, map[string]string{"m.lua": `function probe() return session.count() + #session.players() end`}))
	require.NoError(t, err)
	ret, err := mgr.CallHook("probe")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(0), ret)
}

func TestManager_ConcurrentTicks(t *testing.T) {
	mgr, _ := newTestManager(t, 0)
	_, err := mgr.Load(writeTempLua(t, map[string]string{"count.lua": `
		calls = 0
		function on_tick(tick) calls = calls + 1 end
		function get_calls() return calls end
	`}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				mgr.OnTick(uint64(i*25 + j))
			}
		}()
	}
	wg.Wait()

	ret, err := mgr.CallHook("get_calls")
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(200), ret)
}
