package hooks

import (
	"context"
	"errors"
	"testing"
)

func TestFireTurnStart_PriorityOrderAndJoin(t *testing.T) {
	bus := NewBus(nil)

	bus.OnTurnStart(10, func(ctx context.Context, ev BeforeTurnStart) (*TurnStartResult, error) {
		return &TurnStartResult{PrependContext: "low"}, nil
	})
	bus.OnTurnStart(20, func(ctx context.Context, ev BeforeTurnStart) (*TurnStartResult, error) {
		return &TurnStartResult{PrependContext: "high"}, nil
	})

	got := bus.FireTurnStart(context.Background(), BeforeTurnStart{Prompt: "q"})
	if got != "high\n\nlow" {
		t.Fatalf("join order: %q", got)
	}
}

func TestFireTurnStart_HandlerErrorIsolated(t *testing.T) {
	bus := NewBus(nil)

	bus.OnTurnStart(20, func(ctx context.Context, ev BeforeTurnStart) (*TurnStartResult, error) {
		return nil, errors.New("boom")
	})
	bus.OnTurnStart(10, func(ctx context.Context, ev BeforeTurnStart) (*TurnStartResult, error) {
		return &TurnStartResult{PrependContext: "still here"}, nil
	})

	if got := bus.FireTurnStart(context.Background(), BeforeTurnStart{Prompt: "q"}); got != "still here" {
		t.Fatalf("failing handler must not block others: %q", got)
	}
}

func TestFireTurnEnd_RunsAllHandlers(t *testing.T) {
	bus := NewBus(nil)

	var order []int
	bus.OnTurnEnd(1, func(ctx context.Context, ev TurnEnd) error {
		order = append(order, 1)
		return nil
	})
	bus.OnTurnEnd(2, func(ctx context.Context, ev TurnEnd) error {
		order = append(order, 2)
		return errors.New("ignored")
	})

	bus.FireTurnEnd(context.Background(), TurnEnd{Success: true})
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("handler order: %v", order)
	}
}
