// Package appapi is the narrow facade handed to each running mini-app. It is
// the only way an app may touch the system: screen drawing, LED control,
// event pub/sub, logging, asset resolution, and secret lookup. Everything
// else — the 7-segment display, raw hardware, other apps' state — simply has
// no method here.
package appapi

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/atlanticdynamic/boss/internal/events"
	"github.com/atlanticdynamic/boss/internal/hal"
)

// EntryPoint is the signature every mini-app implements. The context is the
// cancel signal: the app must watch it cooperatively, waiting no longer than
// 0.5s between checks.
type EntryPoint func(ctx context.Context, api *API) error

// EventBus is the slice of the bus the facade needs.
type EventBus interface {
	Publish(eventType string, payload map[string]any, source string)
	Subscribe(eventType string, handler events.Handler, opts ...events.SubscribeOption) (events.SubscriptionID, error)
	Unsubscribe(id events.SubscriptionID)
}

// API is created per app run and must not outlive it; Close tears down every
// subscription the app made.
type API struct {
	appName     string
	appDir      string
	requiredEnv []string

	hw     *hal.Controller
	bus    EventBus
	logger *slog.Logger

	mu   sync.Mutex
	subs []events.SubscriptionID
}

// New builds the facade for one app run.
func New(appName, appDir string, requiredEnv []string, hw *hal.Controller, bus EventBus, handler slog.Handler) *API {
	logger := slog.Default()
	if handler != nil {
		logger = slog.New(handler)
	}
	return &API{
		appName:     appName,
		appDir:      appDir,
		requiredEnv: requiredEnv,
		hw:          hw,
		bus:         bus,
		logger:      logger.WithGroup("app").With("app", appName),
	}
}

// AppName returns the running app's manifest name.
func (a *API) AppName() string {
	return a.appName
}

// TextOption adjusts a DisplayText call.
type TextOption func(*hal.TextOptions)

// WithFontSize sets the font size in points.
func WithFontSize(size int) TextOption {
	return func(o *hal.TextOptions) { o.FontSize = size }
}

// WithColor sets the foreground color.
func WithColor(color string) TextOption {
	return func(o *hal.TextOptions) { o.Color = color }
}

// WithBackground sets the background color.
func WithBackground(color string) TextOption {
	return func(o *hal.TextOptions) { o.Background = color }
}

// WithAlign sets the text alignment: left, center, or right.
func WithAlign(align string) TextOption {
	return func(o *hal.TextOptions) { o.Align = align }
}

// DisplayText renders text on the main screen.
func (a *API) DisplayText(text string, opts ...TextOption) error {
	o := hal.TextOptions{
		Content:    text,
		FontSize:   24,
		Color:      "white",
		Background: "black",
		Align:      "center",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return a.hw.DrawText(o)
}

// DisplayImage shows an image from the app's asset directory. Backends
// without image support degrade to a text placeholder rather than failing.
func (a *API) DisplayImage(filename string) error {
	path, err := a.AssetPath(filename)
	if err != nil {
		return err
	}
	if !a.hw.Capabilities().Images {
		return a.DisplayText(fmt.Sprintf("[image: %s]", filepath.Base(path)))
	}
	// The single text-oriented screen backend has no image path today; the
	// capability flag exists so one can be added without an API change.
	return a.DisplayText(fmt.Sprintf("[image: %s]", filepath.Base(path)))
}

// ClearScreen blanks the screen to a background color.
func (a *API) ClearScreen(background string) error {
	if background == "" {
		background = "black"
	}
	return a.hw.ClearScreen(background)
}

// ScreenSize returns the drawable area.
func (a *API) ScreenSize() hal.ScreenSize {
	return a.hw.ScreenSize()
}

// SetLED turns one color LED on or off. An optional brightness in [0,1]
// applies when on; it defaults to full. Lighting a LED is what makes the
// paired button a valid input.
func (a *API) SetLED(color hal.LEDID, on bool, brightness ...float64) error {
	state := hal.LEDState{On: on}
	if on {
		state.Brightness = 1
		if len(brightness) > 0 {
			state.Brightness = brightness[0]
		}
	}
	return a.hw.SetLED(color, state)
}

// Subscribe registers an event handler; the subscription is removed
// automatically when the run ends. An optional filter map restricts delivery
// to payload-matching events.
func (a *API) Subscribe(eventType string, handler events.Handler, filter map[string]any) (events.SubscriptionID, error) {
	var opts []events.SubscribeOption
	if filter != nil {
		opts = append(opts, events.WithFilter(filter))
	}
	id, err := a.bus.Subscribe(eventType, handler, opts...)
	if err != nil {
		return id, err
	}
	a.mu.Lock()
	a.subs = append(a.subs, id)
	a.mu.Unlock()
	return id, nil
}

// Unsubscribe removes one of the app's subscriptions.
func (a *API) Unsubscribe(id events.SubscriptionID) {
	a.bus.Unsubscribe(id)
	a.mu.Lock()
	a.subs = slices.DeleteFunc(a.subs, func(s events.SubscriptionID) bool { return s == id })
	a.mu.Unlock()
}

// Publish emits an event stamped with the app's source tag.
func (a *API) Publish(eventType string, payload map[string]any) {
	a.bus.Publish(eventType, payload, "app:"+a.appName)
}

// LogInfo writes an info-level log line tagged with the app context.
func (a *API) LogInfo(msg string, args ...any) {
	a.logger.Info(msg, args...)
}

// LogError writes an error-level log line tagged with the app context.
func (a *API) LogError(msg string, args ...any) {
	a.logger.Error(msg, args...)
}

// AssetPath resolves a filename inside the app's own directory. Path
// traversal outside the directory is an error.
func (a *API) AssetPath(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		return "", fmt.Errorf("%w: %q", ErrAssetEscape, filename)
	}
	path := filepath.Join(a.appDir, filename)
	rel, err := filepath.Rel(a.appDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrAssetEscape, filename)
	}
	return path, nil
}

// Secret reads one of the app's declared secrets from the process
// environment. Only names listed in the manifest's required_env are visible;
// anything else, and anything unset, reports not-ok. Secret values are never
// logged.
func (a *API) Secret(name string) (string, bool) {
	if !slices.Contains(a.requiredEnv, name) {
		a.logger.Warn("Secret not declared in manifest", "name", name)
		return "", false
	}
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// Close tears down every subscription the app made. Called by the runner
// when the run terminates; safe to call more than once.
func (a *API) Close() {
	a.mu.Lock()
	subs := a.subs
	a.subs = nil
	a.mu.Unlock()
	for _, id := range subs {
		a.bus.Unsubscribe(id)
	}
}
