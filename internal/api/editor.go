package api

import (
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/Ekorz-boop/ragflow/internal/editor"
	"github.com/Ekorz-boop/ragflow/internal/snapshot"
	"github.com/Ekorz-boop/ragflow/internal/synth"
	"github.com/Ekorz-boop/ragflow/internal/template"
)

// errorStatus maps editor errors onto HTTP status codes.
func errorStatus(err error) int {
	var verr *editor.ValidationError
	var perr *editor.ProcessingError
	var ferr *template.FormatError
	switch {
	case errors.Is(err, editor.ErrBlockNotFound):
		return http.StatusNotFound
	case editor.IsConnectionRejected(err), errors.As(err, &verr), errors.As(err, &ferr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &perr), errors.Is(err, editor.ErrNoProcessor):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// SessionState is the full editor state as served to front-ends.
type SessionState struct {
	ID          string              `json:"id"`
	Debug       bool                `json:"debug"`
	GridSize    float64             `json:"grid_size"`
	Controller  string              `json:"controller"`
	Viewport    editor.Viewport     `json:"viewport"`
	Blocks      []*editor.Block     `json:"blocks"`
	Connections []editor.Connection `json:"connections"`
	Stats       editor.Stats        `json:"stats"`
}

func sessionHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	s := ws.Session
	respond(w, http.StatusOK, SessionState{
		ID:          s.ID(),
		Debug:       s.Debug(),
		GridSize:    s.GridSize(),
		Controller:  ws.Controller.State().String(),
		Viewport:    s.Viewport(),
		Blocks:      s.Blocks(),
		Connections: s.Connections(),
		Stats:       s.Engine().Stats(),
	})
}

func sceneHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	respond(w, http.StatusOK, ws.Controller.Scene())
}

// PaletteEntry is one placeable block type.
type PaletteEntry struct {
	Type     string          `json:"type"`
	Title    string          `json:"title"`
	Inputs   []string        `json:"inputs"`
	Outputs  []string        `json:"outputs"`
	Category editor.Category `json:"category,omitempty"`
	Class    string          `json:"class,omitempty"`
}

func paletteHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var out []PaletteEntry
	for _, typ := range editor.KindTypes() {
		k, err := editor.LookupKind(typ)
		if err != nil {
			continue
		}
		out = append(out, PaletteEntry{
			Type:     k.Type,
			Title:    k.Title,
			Inputs:   k.Inputs,
			Outputs:  k.Outputs,
			Category: k.Category,
		})
	}
	for _, c := range ws.Session.Palette().All() {
		out = append(out, PaletteEntry{
			Type:     editor.TypeCustom,
			Title:    c.ClassName,
			Inputs:   c.Inputs,
			Outputs:  c.Outputs,
			Category: c.Category,
			Class:    c.ClassName,
		})
	}
	respond(w, http.StatusOK, out)
}

// PlaceRequest places a built-in block, or a custom one when Class is set.
type PlaceRequest struct {
	Type  string  `json:"type"`
	Class string  `json:"class,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

func placeHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var req PlaceRequest
	if !decodePost(w, r, &req) {
		return
	}

	var b *editor.Block
	var err error
	if req.Class != "" {
		b, err = ws.Session.PlaceCustom(req.Class, req.X, req.Y)
	} else {
		b, err = ws.Session.PlaceBlock(req.Type, req.X, req.Y)
	}
	if err != nil {
		fail(w, errorStatus(err), err.Error())
		return
	}
	respond(w, http.StatusCreated, b)
}

type MoveRequest struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

func moveHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var req MoveRequest
	if !decodePost(w, r, &req) {
		return
	}
	pos, err := ws.Session.MoveBlock(req.ID, req.X, req.Y)
	if err != nil {
		fail(w, errorStatus(err), err.Error())
		return
	}
	respond(w, http.StatusOK, pos)
}

// BlockRequest names a block.
type BlockRequest struct {
	ID string `json:"id"`
}

func removeHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var req BlockRequest
	if !decodePost(w, r, &req) {
		return
	}
	if err := ws.Session.RemoveBlock(req.ID); err != nil {
		fail(w, errorStatus(err), err.Error())
		return
	}
	respond(w, http.StatusOK, nil)
}

type ConfigRequest struct {
	ID     string         `json:"id"`
	Config map[string]any `json:"config"`
}

func configHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var req ConfigRequest
	if !decodePost(w, r, &req) {
		return
	}
	if err := ws.Session.EditConfig(req.ID, req.Config); err != nil {
		fail(w, errorStatus(err), err.Error())
		return
	}
	b, _ := ws.Session.Block(req.ID)
	respond(w, http.StatusOK, b)
}

// MethodRequest selects a custom block method and optionally sets its
// parameters.
type MethodRequest struct {
	ID         string         `json:"id"`
	Method     string         `json:"method"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func methodHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var req MethodRequest
	if !decodePost(w, r, &req) {
		return
	}
	if err := ws.Session.SelectMethod(req.ID, req.Method); err != nil {
		fail(w, errorStatus(err), err.Error())
		return
	}
	for name, value := range req.Parameters {
		if err := ws.Session.SetParameter(req.ID, req.Method, name, value); err != nil {
			fail(w, errorStatus(err), err.Error())
			return
		}
	}
	b, _ := ws.Session.Block(req.ID)
	respond(w, http.StatusOK, b)
}

func processHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var req BlockRequest
	if !decodePost(w, r, &req) {
		return
	}
	if err := ws.Session.Engine().ProcessBlock(r.Context(), req.ID); err != nil {
		fail(w, errorStatus(err), err.Error())
		return
	}
	b, _ := ws.Session.Block(req.ID)
	respond(w, http.StatusOK, b)
}

func connectHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var req editor.Connection
	if !decodePost(w, r, &req) {
		return
	}
	if err := ws.Session.Link(req.Source, req.Target, req.InputID); err != nil {
		fail(w, errorStatus(err), err.Error())
		return
	}
	respond(w, http.StatusCreated, req)
}

// DisconnectRequest frees one input port.
type DisconnectRequest struct {
	Target  string `json:"target"`
	InputID string `json:"inputId"`
}

func disconnectHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var req DisconnectRequest
	if !decodePost(w, r, &req) {
		return
	}
	if !ws.Session.DisconnectInput(req.Target, req.InputID) {
		fail(w, http.StatusNotFound, "no connection on "+req.Target+"."+req.InputID)
		return
	}
	respond(w, http.StatusOK, nil)
}

// EdgeClickResult tells whether the click selected or deleted the edge.
type EdgeClickResult struct {
	Deleted bool `json:"deleted"`
}

func edgeClickHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var req editor.Connection
	if !decodePost(w, r, &req) {
		return
	}
	deleted, err := ws.Session.ClickEdge(req)
	if err != nil {
		fail(w, http.StatusNotFound, err.Error())
		return
	}
	respond(w, http.StatusOK, EdgeClickResult{Deleted: deleted})
}

// PointerRequest is one pointer event for the interaction controller.
type PointerRequest struct {
	Phase string `json:"phase"` // down, move, up or cancel
	editor.PointerEvent
}

func pointerHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var req PointerRequest
	if !decodePost(w, r, &req) {
		return
	}
	c := ws.Controller
	switch req.Phase {
	case "down":
		c.PointerDown(req.PointerEvent)
	case "move":
		c.PointerMove(req.PointerEvent)
	case "up":
		c.PointerUp(req.PointerEvent)
	case "cancel":
		c.Cancel()
	default:
		fail(w, http.StatusBadRequest, "phase must be down, move, up or cancel")
		return
	}
	respond(w, http.StatusOK, c.Scene())
}

// ViewportRequest is a zoom, fit, reset, wheel or resize action.
type ViewportRequest struct {
	Action string  `json:"action"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Dir    int     `json:"dir,omitempty"`
	Zoom   float64 `json:"zoom,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

func viewportHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var req ViewportRequest
	if !decodePost(w, r, &req) {
		return
	}
	s := ws.Session
	anchor := editor.Point{X: req.X, Y: req.Y}
	switch req.Action {
	case "zoom_in":
		s.ZoomIn()
	case "zoom_out":
		s.ZoomOut()
	case "zoom_at":
		s.ZoomAt(anchor, req.Zoom)
	case "wheel":
		s.Wheel(anchor, req.Dir)
	case "reset":
		s.ResetView()
	case "fit":
		s.FitToView()
	case "size":
		s.SetViewportSize(req.Width, req.Height)
	default:
		fail(w, http.StatusBadRequest, "unknown viewport action: "+req.Action)
		return
	}
	respond(w, http.StatusOK, s.Viewport())
}

func validateHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	debug := ws.Session.Debug()
	if v := r.URL.Query().Get("debug"); v != "" {
		debug, _ = strconv.ParseBool(v)
	}
	respond(w, http.StatusOK, ws.Session.Validate(debug))
}

func runHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	if r.Method != http.MethodPost {
		fail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report, err := ws.Session.Engine().RunAll(r.Context())
	if err != nil {
		fail(w, errorStatus(err), err.Error())
		return
	}
	// let downstream propagation settle so the answer carries final outputs
	if r.URL.Query().Get("wait") == "true" {
		ws.Session.Engine().Wait()
	}
	respond(w, http.StatusOK, report)
}

type DebugRequest struct {
	Enabled bool `json:"enabled"`
}

func debugHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	var req DebugRequest
	if !decodePost(w, r, &req) {
		return
	}
	ws.Session.SetDebug(req.Enabled)
	respond(w, http.StatusOK, req)
}

func clearHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	if r.Method != http.MethodPost {
		fail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ws.Session.Clear()
	respond(w, http.StatusOK, nil)
}

func exportHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "pipeline"
	}
	data, err := template.Marshal(template.Save(ws.Session, name))
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+template.Filename(name)+`"`)
	_, _ = w.Write(data)
}

func importHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	if r.Method != http.MethodPost {
		fail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	t, err := template.Decode(r.Body)
	if err != nil {
		fail(w, errorStatus(err), err.Error())
		return
	}
	report, err := template.Apply(r.Context(), ws.Session, t, template.LoadOptions{
		Validator:    ws.Validator,
		Introspector: ws.Introspector,
	})
	if err != nil {
		fail(w, errorStatus(err), err.Error())
		return
	}
	respond(w, http.StatusOK, report)
}

func snapshotHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	opts := snapshot.Options{}
	opts.Width, _ = strconv.Atoi(r.URL.Query().Get("width"))
	opts.Height, _ = strconv.Atoi(r.URL.Query().Get("height"))

	w.Header().Set("Content-Type", "image/png")
	if err := snapshot.Encode(w, ws.Controller.Scene(), opts); err != nil {
		w.Header().Set("Content-Type", "application/json")
		fail(w, http.StatusUnprocessableEntity, err.Error())
	}
}

// CustomRequest creates a custom block from an introspected class.
type CustomRequest struct {
	Library    string                    `json:"library"`
	Module     string                    `json:"module"`
	Class      string                    `json:"class"`
	Methods    []string                  `json:"methods,omitempty"`
	Inputs     []string                  `json:"inputs,omitempty"`
	Outputs    []string                  `json:"outputs,omitempty"`
	Parameters map[string]map[string]any `json:"parameters,omitempty"`
	X          float64                   `json:"x"`
	Y          float64                   `json:"y"`
}

func customHandler(w http.ResponseWriter, r *http.Request) {
	ws := requireWorkspace(w)
	if ws == nil {
		return
	}
	if ws.Introspector == nil {
		fail(w, http.StatusServiceUnavailable, "no introspection backend")
		return
	}
	var req CustomRequest
	if !decodePost(w, r, &req) {
		return
	}

	wiz := synth.NewWizard(ws.Introspector)
	// a failed lookup still leaves a usable, name-derived class
	_ = wiz.SelectClass(r.Context(), req.Library, req.Module, req.Class)
	if err := shapeCustom(wiz, req); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := wiz.Create(ws.Session, req.X, req.Y)
	if err != nil {
		fail(w, errorStatus(err), err.Error())
		return
	}
	respond(w, http.StatusCreated, b)
}

func shapeCustom(wiz *synth.Wizard, req CustomRequest) error {
	for _, m := range req.Methods {
		if err := wiz.SelectMethod(m); err != nil {
			return err
		}
	}
	for _, in := range req.Inputs {
		if slices.Contains(wiz.Inputs(), in) {
			continue
		}
		if err := wiz.AddInput(in); err != nil {
			return err
		}
	}
	for _, out := range req.Outputs {
		if slices.Contains(wiz.Outputs(), out) {
			continue
		}
		if err := wiz.AddOutput(out); err != nil {
			return err
		}
	}
	for method, params := range req.Parameters {
		for name, value := range params {
			if err := wiz.SetParameter(method, name, value); err != nil {
				return err
			}
		}
	}
	return nil
}
