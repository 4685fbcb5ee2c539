package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/proxsync/internal/scripting"
)

func TestNewSandboxedState_UnsafeLibsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"os", "io", "debug", "package"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_DangerousGlobalsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	err := L.DoString(`
		local x = math.sqrt(4)
		assert(x == 2.0, "math.sqrt failed")
		local s = string.upper("hello")
		assert(s == "HELLO", "string.upper failed")
		local t = {}
		table.insert(t, 1)
		assert(#t == 1, "table.insert failed")
	`)
	assert.NoError(t, err)
}

func TestRunLimited_InstructionLimitExceeded(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	err := scripting.RunLimited(L, 10, func() error { return L.DoString(`while true do end`) })
	assert.Error(t, err, "expected instruction limit error")
}

func TestRunLimited_DefaultLimitNormalScriptRuns(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	assert.NoError(t, scripting.RunLimited(L, 0, func() error { return L.DoString(`local x = 1 + 1`) }))
}

func TestRunLimited_BudgetIsPerCall(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	require.NoError(t, L.DoString(`function work() local s = 0 for i = 1, 50 do s = s + i end return s end`))

	// Each call fits the budget even though the calls together exceed it.
	for i := 0; i < 20; i++ {
		err := scripting.RunLimited(L, 1000, func() error {
			return L.CallByParam(lua.P{Fn: L.GetGlobal("work"), NRet: 1, Protect: true})
		})
		require.NoError(t, err)
		assert.Equal(t, lua.LNumber(1275), L.Get(-1))
		L.Pop(1)
	}
}

func TestRunLimited_StateUsableAfterExhaustion(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	require.Error(t, scripting.RunLimited(L, 5, func() error { return L.DoString(`while true do end`) }))
	assert.NoError(t, scripting.RunLimited(L, 0, func() error { return L.DoString(`x = 42`) }))
	assert.Equal(t, lua.LNumber(42), L.GetGlobal("x"))
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		L := scripting.NewSandboxedState()
		defer L.Close()
		err := scripting.RunLimited(L, limit, func() error { return L.DoString(`while true do end`) })
		if err == nil {
			t.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}
