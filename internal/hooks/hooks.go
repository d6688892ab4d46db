// Package hooks defines the host event surface the engine attaches to: a
// pre-turn event that may contribute context to inject, and a post-turn
// event carrying the finished conversation. Handler errors are logged and
// swallowed — a memory failure must never surface to the host turn.
package hooks

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rcliao/memory-router/internal/model"
)

// BeforeTurnStart fires before the agent answers a prompt.
type BeforeTurnStart struct {
	SessionID string
	Prompt    string
}

// TurnStartResult is a handler's contribution to the turn's context.
type TurnStartResult struct {
	PrependContext string
}

// TurnEnd fires after a turn completes, with the full message history.
type TurnEnd struct {
	SessionID  string
	Messages   []model.Message
	DurationMs int64
	Success    bool
}

// TurnStartHandler may return context to prepend; nil means no contribution.
type TurnStartHandler func(ctx context.Context, ev BeforeTurnStart) (*TurnStartResult, error)

// TurnEndHandler consumes the finished turn.
type TurnEndHandler func(ctx context.Context, ev TurnEnd) error

type startRegistration struct {
	priority int
	handler  TurnStartHandler
}

type endRegistration struct {
	priority int
	handler  TurnEndHandler
}

// Bus dispatches turn events to registered handlers. Higher priority runs
// first; registration order breaks ties.
type Bus struct {
	mu     sync.RWMutex
	starts []startRegistration
	ends   []endRegistration
	logger *zap.Logger
}

// NewBus creates an event bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// OnTurnStart registers a pre-turn handler.
func (b *Bus) OnTurnStart(priority int, h TurnStartHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts = append(b.starts, startRegistration{priority: priority, handler: h})
	sort.SliceStable(b.starts, func(i, j int) bool {
		return b.starts[i].priority > b.starts[j].priority
	})
}

// OnTurnEnd registers a post-turn handler.
func (b *Bus) OnTurnEnd(priority int, h TurnEndHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ends = append(b.ends, endRegistration{priority: priority, handler: h})
	sort.SliceStable(b.ends, func(i, j int) bool {
		return b.ends[i].priority > b.ends[j].priority
	})
}

// FireTurnStart runs all pre-turn handlers in priority order and joins their
// context contributions with blank lines.
func (b *Bus) FireTurnStart(ctx context.Context, ev BeforeTurnStart) string {
	b.mu.RLock()
	starts := make([]startRegistration, len(b.starts))
	copy(starts, b.starts)
	b.mu.RUnlock()

	var parts []string
	for _, reg := range starts {
		res, err := reg.handler(ctx, ev)
		if err != nil {
			b.logger.Warn("turn start handler failed", zap.Error(err))
			continue
		}
		if res != nil && res.PrependContext != "" {
			parts = append(parts, res.PrependContext)
		}
	}
	return strings.Join(parts, "\n\n")
}

// FireTurnEnd runs all post-turn handlers in priority order.
func (b *Bus) FireTurnEnd(ctx context.Context, ev TurnEnd) {
	b.mu.RLock()
	ends := make([]endRegistration, len(b.ends))
	copy(ends, b.ends)
	b.mu.RUnlock()

	for _, reg := range ends {
		if err := reg.handler(ctx, ev); err != nil {
			b.logger.Warn("turn end handler failed", zap.Error(err))
		}
	}
}
