package builtin

import (
	"context"
	"fmt"

	"github.com/atlanticdynamic/boss/internal/apps/appapi"
	"github.com/atlanticdynamic/boss/internal/events"
)

// StartupAppName is the manifest name of the idle-screen app launched at boot
// and after return-timeouts.
const StartupAppName = "startup"

func init() {
	Register(StartupAppName, startupMain)
}

// startupMain renders the idle screen and mirrors the dialed switch value as
// it changes. It runs until canceled.
func startupMain(ctx context.Context, api *appapi.API) error {
	if err := api.ClearScreen("black"); err != nil {
		return fmt.Errorf("failed to clear screen: %w", err)
	}
	if err := drawIdle(api, -1); err != nil {
		return err
	}

	changes := make(chan events.Event, 16)
	id, err := api.Subscribe(events.TypeSwitchChanged, func(ev events.Event) {
		select {
		case changes <- ev:
		default:
		}
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to subscribe to switch changes: %w", err)
	}
	defer api.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-changes:
			value, ok := ev.Payload["new_value"].(int)
			if !ok {
				continue
			}
			if err := drawIdle(api, value); err != nil {
				api.LogError("Idle screen redraw failed", "error", err)
			}
		}
	}
}

// drawIdle paints the ready prompt. A negative value means no switch reading
// has arrived yet.
func drawIdle(api *appapi.API, value int) error {
	text := "B.O.S.S. ready\nSet switches, press Go"
	if value >= 0 {
		text = fmt.Sprintf("B.O.S.S. ready\nSwitches: %d\nPress Go to launch", value)
	}
	return api.DisplayText(text,
		appapi.WithFontSize(28),
		appapi.WithColor("green"),
		appapi.WithAlign("center"),
	)
}
