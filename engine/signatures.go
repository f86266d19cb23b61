package engine

import (
	"github.com/tetratelabs/wazero/api"

	enginebridge "github.com/wippyai/engine-bridge"
)

const (
	symMemory  = "memory"
	symRealloc = "cabi_realloc"

	hostModule           = "env"
	importUIMessage      = "hw_ui_message"
	importGetProcAddress = "hw_get_proc_address"
)

type signature struct {
	params int
	// results lists accepted i32 result counts.
	results []int
}

var signatures = map[enginebridge.Symbol]signature{
	enginebridge.SymProtocolVersion:     {params: 0, results: []int{1}},
	enginebridge.SymStartEngine:         {params: 0, results: []int{1}},
	enginebridge.SymCleanup:             {params: 1, results: []int{0}},
	enginebridge.SymGeneratePreview:     {params: 2, results: []int{0}},
	enginebridge.SymSendIPC:             {params: 3, results: []int{0, 1}},
	enginebridge.SymSetEngineBarrier:    {params: 1, results: []int{0}},
	enginebridge.SymRemoveEngineBarrier: {params: 1, results: []int{0}},
	enginebridge.SymSetupGLContext:      {params: 3, results: []int{0}},
	enginebridge.SymRegisterUIMessages:  {params: 2, results: []int{0}},
	enginebridge.SymUpdateMousePosition: {params: 5, results: []int{1}},
	enginebridge.SymResizeWindow:        {params: 3, results: []int{0}},
	enginebridge.SymGameTick:            {params: 2, results: []int{0}},
	symRealloc:                          {params: 4, results: []int{1}},
}

// matches reports whether def has the expected all-i32 shape.
func (s signature) matches(def api.FunctionDefinition) bool {
	params := def.ParamTypes()
	if len(params) != s.params || !allI32(params) {
		return false
	}
	results := def.ResultTypes()
	if !allI32(results) {
		return false
	}
	for _, n := range s.results {
		if len(results) == n {
			return true
		}
	}
	return false
}

func allI32(types []api.ValueType) bool {
	for _, t := range types {
		if t != api.ValueTypeI32 {
			return false
		}
	}
	return true
}
