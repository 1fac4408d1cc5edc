package hal

import (
	"context"

	"github.com/atlanticdynamic/boss/internal/server/finitestate"
)

func (c *Controller) GetState() string {
	return c.fsm.GetState()
}

func (c *Controller) GetStateChan(ctx context.Context) <-chan string {
	return c.fsm.GetStateChan(ctx)
}

func (c *Controller) IsRunning() bool {
	return c.fsm.GetState() == finitestate.StatusRunning
}
