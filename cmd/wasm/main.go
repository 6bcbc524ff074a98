//go:build js && wasm

package main

import (
	"syscall/js"

	"github.com/inamate/whiteboard/internal/engine"
)

var eng *engine.Engine

func main() {
	eng = engine.NewEngine()

	// Create the engine API object
	boardEngine := js.Global().Get("Object").New()

	// --- Commands (frontend → backend) ---
	boardEngine.Set("loadRecord", js.FuncOf(loadRecord))
	boardEngine.Set("loadSample", js.FuncOf(loadSample))
	boardEngine.Set("transient", js.FuncOf(transient))
	boardEngine.Set("commit", js.FuncOf(commit))
	boardEngine.Set("cancel", js.FuncOf(cancel))
	boardEngine.Set("undo", js.FuncOf(undo))
	boardEngine.Set("redo", js.FuncOf(redo))
	boardEngine.Set("setSelection", js.FuncOf(setSelection))
	boardEngine.Set("tick", js.FuncOf(tick))

	// --- Queries (frontend ← backend) ---
	boardEngine.Set("render", js.FuncOf(render))
	boardEngine.Set("queryRect", js.FuncOf(queryRect))
	boardEngine.Set("queryNearPoint", js.FuncOf(queryNearPoint))
	boardEngine.Set("hitTest", js.FuncOf(hitTest))
	boardEngine.Set("getSelection", js.FuncOf(getSelection))
	boardEngine.Set("getSelectionBounds", js.FuncOf(getSelectionBounds))
	boardEngine.Set("getElements", js.FuncOf(getElements))
	boardEngine.Set("getRecord", js.FuncOf(getRecord))
	boardEngine.Set("getHistoryState", js.FuncOf(getHistoryState))

	// Register on global scope
	js.Global().Set("boardEngine", boardEngine)

	// Signal that WASM is ready
	js.Global().Set("boardWasmReady", js.ValueOf(true))

	// Keep Go runtime alive
	select {}
}

func errorResult(err error) interface{} {
	return js.ValueOf(map[string]interface{}{"error": err.Error()})
}

func stringArg(args []js.Value, i int) string {
	if len(args) <= i || args[i].Type() != js.TypeString {
		return ""
	}
	return args[i].String()
}

func floatArgs(args []js.Value, n int) ([]float64, bool) {
	if len(args) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = args[i].Float()
	}
	return out, true
}

// --- Command Handlers ---

func loadRecord(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(map[string]interface{}{"error": "missing record JSON"})
	}
	if err := eng.LoadRecord(args[0].String()); err != nil {
		return errorResult(err)
	}
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func loadSample(this js.Value, args []js.Value) interface{} {
	eng.LoadSample(stringArg(args, 0))
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func transient(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(map[string]interface{}{"error": "missing mutation JSON"})
	}
	if err := eng.Transient(args[0].String()); err != nil {
		return errorResult(err)
	}
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func commit(this js.Value, args []js.Value) interface{} {
	changed, err := eng.Commit(stringArg(args, 0))
	if err != nil {
		return errorResult(err)
	}
	return js.ValueOf(map[string]interface{}{"changed": changed})
}

func cancel(this js.Value, args []js.Value) interface{} {
	eng.Cancel()
	return nil
}

func undo(this js.Value, args []js.Value) interface{} {
	changed, err := eng.Undo()
	if err != nil {
		return errorResult(err)
	}
	return js.ValueOf(map[string]interface{}{"changed": changed})
}

func redo(this js.Value, args []js.Value) interface{} {
	changed, err := eng.Redo()
	if err != nil {
		return errorResult(err)
	}
	return js.ValueOf(map[string]interface{}{"changed": changed})
}

func setSelection(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		eng.SetSelection(nil)
		return nil
	}

	arr := args[0]
	if arr.Type() != js.TypeObject {
		eng.SetSelection(nil)
		return nil
	}

	length := arr.Length()
	ids := make([]string, length)
	for i := 0; i < length; i++ {
		ids[i] = arr.Index(i).String()
	}
	eng.SetSelection(ids)
	return nil
}

func tick(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.Tick())
}

// --- Query Handlers ---

func render(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.Render())
}

func queryRect(this js.Value, args []js.Value) interface{} {
	v, ok := floatArgs(args, 4)
	if !ok {
		return js.ValueOf("[]")
	}
	return js.ValueOf(eng.QueryRect(v[0], v[1], v[2], v[3]))
}

func queryNearPoint(this js.Value, args []js.Value) interface{} {
	v, ok := floatArgs(args, 3)
	if !ok {
		return js.ValueOf("[]")
	}
	return js.ValueOf(eng.QueryNearPoint(v[0], v[1], v[2]))
}

func hitTest(this js.Value, args []js.Value) interface{} {
	v, ok := floatArgs(args, 2)
	if !ok {
		return js.ValueOf("")
	}
	return js.ValueOf(eng.HitTest(v[0], v[1]))
}

func getSelection(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.GetSelection())
}

func getSelectionBounds(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.GetSelectionBounds())
}

func getElements(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.GetElements())
}

func getRecord(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.GetRecord())
}

func getHistoryState(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.GetHistoryState())
}
