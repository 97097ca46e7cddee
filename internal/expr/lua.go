package expr

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"
)

const (
	fnGlobal      = "__beatcue_fn"
	localsGlobal  = "__beatcue_locals"
	globalsGlobal = "__beatcue_globals"
)

// Call carries the bindings for one expression invocation.
type Call struct {
	Status    map[string]any
	Cue       map[string]any
	Container string
	Locals    *Scratch
	Globals   *Scratch
}

// CompiledFn is a loaded expression ready to be invoked.
type CompiledFn func(call Call) (any, error)

// Compiler turns expression source into a CompiledFn.
type Compiler interface {
	Compile(source string) (CompiledFn, error)
}

// LuaCompiler compiles expressions as Lua function bodies.
type LuaCompiler struct{}

// ErrEmptySource is returned when compiling blank source text.
var ErrEmptySource = errors.New("expression source is empty")

// Compile loads source into a fresh interpreter. Syntax errors are reported
// here; errors raised while running are reported by the returned function.
func (LuaCompiler) Compile(source string) (CompiledFn, error) {
	if strings.TrimSpace(source) == "" {
		return nil, ErrEmptySource
	}

	state := lua.NewState()
	lua.OpenLibraries(state)

	wrapped := "return function(status, cue, container, locals, globals)\n" + source + "\nend"
	if err := lua.LoadString(state, wrapped); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	state.SetGlobal(fnGlobal)

	fn := &luaFn{state: state}
	return fn.invoke, nil
}

// luaFn owns one interpreter; calls are serialized.
type luaFn struct {
	mu    sync.Mutex
	state *lua.State
}

func (f *luaFn) invoke(call Call) (result any, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state := f.state
	defer state.SetTop(0)

	locals := call.Locals
	if locals == nil {
		locals = NewScratch()
	}
	globals := call.Globals
	if globals == nil {
		globals = NewScratch()
	}

	// Same-scratch calls would deadlock on the second lock.
	lockBoth(locals, globals, func(lm, gm map[string]any) (map[string]any, map[string]any) {
		state.Global(fnGlobal)
		pushValue(state, call.Status)
		pushValue(state, call.Cue)
		state.PushString(call.Container)

		pushValue(state, lm)
		state.PushValue(-1)
		state.SetGlobal(localsGlobal)
		if locals == globals {
			state.PushValue(-1)
		} else {
			pushValue(state, gm)
		}
		state.PushValue(-1)
		state.SetGlobal(globalsGlobal)

		if callErr := state.ProtectedCall(5, 1, 0); callErr != nil {
			err = callErr
			clearScratchGlobals(state)
			return nil, nil
		}
		result = luaToGo(state, -1)
		state.Pop(1)

		state.Global(localsGlobal)
		nextLocals := tableToMap(state, -1)
		state.Pop(1)
		state.Global(globalsGlobal)
		nextGlobals := tableToMap(state, -1)
		state.Pop(1)
		clearScratchGlobals(state)
		return nextLocals, nextGlobals
	})
	return result, err
}

func lockBoth(locals, globals *Scratch, fn func(lm, gm map[string]any) (map[string]any, map[string]any)) {
	if locals == globals {
		locals.with(func(m map[string]any) map[string]any {
			next, _ := fn(m, m)
			return next
		})
		return
	}
	locals.with(func(lm map[string]any) map[string]any {
		var nextLocals map[string]any
		globals.with(func(gm map[string]any) map[string]any {
			var nextGlobals map[string]any
			nextLocals, nextGlobals = fn(lm, gm)
			return nextGlobals
		})
		return nextLocals
	})
}

func clearScratchGlobals(state *lua.State) {
	state.PushNil()
	state.SetGlobal(localsGlobal)
	state.PushNil()
	state.SetGlobal(globalsGlobal)
}

func pushValue(state *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		state.PushNil()
	case string:
		state.PushString(v)
	case bool:
		state.PushBoolean(v)
	case int:
		state.PushInteger(v)
	case int64:
		state.PushInteger(int(v))
	case float64:
		state.PushNumber(v)
	case float32:
		state.PushNumber(float64(v))
	case fmt.Stringer:
		state.PushString(v.String())
	case []any:
		state.NewTable()
		for i, item := range v {
			pushValue(state, item)
			state.RawSetInt(-2, i+1)
		}
	case map[string]any:
		state.NewTable()
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pushValue(state, v[k])
			state.SetField(-2, k)
		}
	default:
		state.PushString(fmt.Sprint(v))
	}
}

func tableToMap(state *lua.State, index int) map[string]any {
	output := map[string]any{}
	if state.TypeOf(index) != lua.TypeTable {
		return output
	}

	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			if value := luaToGo(state, -1); value != nil {
				output[key] = value
			}
		}
		state.Pop(1)
	}
	return output
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

func tableToGo(state *lua.State, index int) any {
	index = state.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := state.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			result = append(result, luaToGo(state, -1))
			state.Pop(1)
		}
		return result
	}
	return tableToMap(state, index)
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 && math.Abs(value) < math.MaxInt32 {
		return int(value)
	}
	return value
}
