package events

import (
	"context"

	"github.com/atlanticdynamic/boss/internal/server/finitestate"
	"github.com/robbyt/go-supervisor/supervisor"
)

var _ supervisor.Stateable = (*Bus)(nil)

func (b *Bus) GetState() string {
	return b.fsm.GetState()
}

func (b *Bus) GetStateChan(ctx context.Context) <-chan string {
	return b.fsm.GetStateChan(ctx)
}

func (b *Bus) IsRunning() bool {
	return b.fsm.GetState() == finitestate.StatusRunning
}
