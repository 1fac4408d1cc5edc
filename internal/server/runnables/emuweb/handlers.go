package emuweb

import (
	"embed"
	"encoding/json"
	"net/http"
	"time"

	"github.com/atlanticdynamic/boss/internal/hal"
	"github.com/robbyt/go-supervisor/runnables/httpserver"
)

//go:embed static
var staticFS embed.FS

// routes builds the route table for the debug surface.
func (r *Runner) routes() ([]httpserver.Route, error) {
	specs := []struct {
		name    string
		path    string
		handler http.HandlerFunc
	}{
		{"index", "/", r.handleIndex},
		{"state", "/api/state", r.handleState},
		{"switches", "/api/switches", r.handleSwitches},
		{"button", "/api/button/{id}/{action}", r.handleButton},
		{"led", "/api/led/{color}", r.handleLED},
		{"display", "/api/display", r.handleDisplay},
		{"screen", "/api/screen", r.handleScreen},
		{"ws", "/ws", r.handleWS},
	}

	routes := make([]httpserver.Route, 0, len(specs))
	for _, s := range specs {
		route, err := httpserver.NewRouteFromHandlerFunc(s.name, s.path, s.handler)
		if err != nil {
			return nil, err
		}
		routes = append(routes, *route)
	}
	return routes, nil
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"status": "error", "error": msg})
}

// snapshot assembles the full board state for /api/state and the WebSocket
// initial_state frame.
func (r *Runner) snapshot() map[string]any {
	switches := -1
	if v, err := r.hw.ReadSwitches(); err == nil {
		switches = v
	}

	leds := make(map[string]any, len(hal.AllLEDs))
	for id, state := range r.hw.LEDSnapshot() {
		leds[string(id)] = map[string]any{"on": state.On, "brightness": state.Brightness}
	}

	var display any
	if v := r.hw.DisplayValue(); v != nil {
		display = *v
	}

	state := map[string]any{
		"backend":  string(r.hw.Kind()),
		"switches": switches,
		"leds":     leds,
		"display":  display,
		"screen":   r.hw.Screen(),
	}
	if r.apps != nil {
		state["current_app"] = r.apps.CurrentApp()
	}
	return state
}

// initialStateFrame is sent to each WebSocket client on connect.
func (r *Runner) initialStateFrame() []byte {
	data, err := json.Marshal(frame{
		Event:     "initial_state",
		Payload:   r.snapshot(),
		Timestamp: time.Now(),
	})
	if err != nil {
		r.logger.Error("Initial state marshal failed", "error", err)
		return []byte(`{"event":"initial_state","payload":{}}`)
	}
	return data
}

func (r *Runner) handleIndex(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	data, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "control panel missing")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func (r *Runner) handleState(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "use GET")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "state": r.snapshot()})
}

func (r *Runner) handleSwitches(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var body struct {
		Value int `json:"value"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.device.SetSwitches(body.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOK(w)
}

func (r *Runner) handleButton(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	button := hal.ButtonID(req.PathValue("id"))
	if !button.Valid() {
		writeError(w, http.StatusBadRequest, "unknown button")
		return
	}

	var err error
	switch req.PathValue("action") {
	case "press":
		err = r.device.PressButton(button)
	case "release":
		err = r.device.ReleaseButton(button)
	default:
		writeError(w, http.StatusNotFound, "action must be press or release")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w)
}

func (r *Runner) handleLED(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	led := hal.LEDID(req.PathValue("color"))
	if !led.Valid() {
		writeError(w, http.StatusBadRequest, "unknown led")
		return
	}
	var body struct {
		On         bool    `json:"on"`
		Brightness float64 `json:"brightness"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.hw.SetLED(led, hal.LEDState{On: body.On, Brightness: body.Brightness}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOK(w)
}

func (r *Runner) handleDisplay(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var body struct {
		Value *int `json:"value"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.hw.SetDisplay(body.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOK(w)
}

func (r *Runner) handleScreen(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		var body struct {
			Text       string `json:"text"`
			FontSize   int    `json:"font_size"`
			Color      string `json:"color"`
			Background string `json:"background"`
			Align      string `json:"align"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		opts := hal.TextOptions{
			Content:    body.Text,
			FontSize:   body.FontSize,
			Color:      body.Color,
			Background: body.Background,
			Align:      body.Align,
		}
		if opts.FontSize == 0 {
			opts.FontSize = 24
		}
		if err := r.hw.DrawText(opts); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeOK(w)

	case http.MethodDelete:
		background := req.URL.Query().Get("background")
		if background == "" {
			background = "black"
		}
		if err := r.hw.ClearScreen(background); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeOK(w)

	default:
		writeError(w, http.StatusMethodNotAllowed, "use POST or DELETE")
	}
}

func (r *Runner) handleWS(w http.ResponseWriter, req *http.Request) {
	r.hub.serveWS(w, req, r.initialStateFrame())
}
