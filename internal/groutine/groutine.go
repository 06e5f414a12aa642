package groutine

import (
	"context"
	"runtime/pprof"
	"sync"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts a goroutine labelled with name so it shows up in pprof dumps.
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Group runs named long-lived tasks and collects the first failure.
//
//	g := groutine.NewGroup(ctx, logger)
//	g.Go("scheduler", sched.Run)
//	g.Go("button", bridge.Run)
//	err := g.Wait()
//
// When any task returns a non-nil error the group context is cancelled so the
// remaining tasks wind down.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *logrus.Logger

	wg   sync.WaitGroup
	once sync.Once
	err  error
}

// NewGroup creates a group bound to parent.
func NewGroup(parent context.Context, logger *logrus.Logger) *Group {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel, logger: logger}
}

// Go starts fn under name.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	Go(g.ctx, name, func(ctx context.Context) {
		defer g.wg.Done()

		g.logger.WithField("task", name).Debug("Task started")
		err := fn(ctx)
		if err != nil && ctx.Err() == nil {
			g.logger.WithError(err).WithField("task", name).Error("Task failed")
			g.once.Do(func() {
				g.err = err
				g.cancel()
			})
			return
		}
		g.logger.WithField("task", name).Debug("Task stopped")
	})
}

// Wait blocks until every task returns and reports the first failure.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.cancel()
	return g.err
}
