//go:build js && wasm

// Command wasm exposes the traffic engine to the browser via WebAssembly.
// After loading, it registers two global JavaScript functions:
//
//	runTrafficSimulation(jsonString) -> jsonString
//	renderLanes(leftArray, rightArray) -> string
//
// runTrafficSimulation takes a JSON-encoded SimulationInput and returns the
// JSON-encoded SimulationLog, the same contract as "nssim run --raw". Set
// record_lanes in the input to get the lane cells of every tick.
package main

import (
	"syscall/js"

	"github.com/cxd309/nstraffic/internal/engine"
	"github.com/cxd309/nstraffic/internal/render"
)

func main() {
	js.Global().Set("runTrafficSimulation", js.FuncOf(runTrafficSimulation))
	js.Global().Set("renderLanes", js.FuncOf(renderLanes))
	select {} // keep the WASM module alive until the page is closed
}

func runTrafficSimulation(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return map[string]any{"error": "no input provided"}
	}

	result, err := engine.RunJSON(args[0].String())
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return result
}

func renderLanes(_ js.Value, args []js.Value) any {
	if len(args) < 2 {
		return map[string]any{"error": "left and right lanes required"}
	}
	return render.Lanes(toInts(args[0]), toInts(args[1]))
}

func toInts(v js.Value) []int {
	out := make([]int, v.Length())
	for i := range out {
		out[i] = v.Index(i).Int()
	}
	return out
}
