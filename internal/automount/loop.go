package automount

import (
	"context"

	"github.com/nerrad567/automountd/internal/device"
	"github.com/nerrad567/automountd/internal/watch"
)

// Loop is the single goroutine that owns the registry.
type Loop struct {
	core    *Core
	queries chan chan []device.DeviceView
	done    chan struct{}
}

// NewLoop creates a Loop driving core.
func NewLoop(core *Core) *Loop {
	return &Loop{
		core:    core,
		queries: make(chan chan []device.DeviceView),
		done:    make(chan struct{}),
	}
}

// Run prepares the directories, then handles events until ctx is cancelled,
// events is closed or a Shutdown event arrives. The registry is drained
// before Run returns.
//
// Operations are never interrupted: the handlers receive a context that is
// not cancelled with ctx.
func (l *Loop) Run(ctx context.Context, events <-chan watch.Event) error {
	defer close(l.done)

	opCtx := context.WithoutCancel(ctx)
	if err := l.core.Start(opCtx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			l.core.Shutdown(opCtx)
			return nil

		case ev, ok := <-events:
			if !ok || ev.Type == watch.Shutdown {
				l.core.Shutdown(opCtx)
				return nil
			}
			l.dispatch(opCtx, ev)

		case reply := <-l.queries:
			reply <- l.core.Snapshot()
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, ev watch.Event) {
	switch ev.Type {
	case watch.DeviceAdded:
		l.core.HandleNewDevice(ctx, ev.Path)
	case watch.DeviceRemoved:
		l.core.HandleRemovedDevice(ctx, ev.Path)
	case watch.MountpointAdded:
		l.core.HandleNewMountpoint(ctx, ev.Path)
	case watch.MountpointRemoved:
		l.core.HandleRemovedMountpoint(ctx, ev.Path)
	}
}

// Snapshot asks the loop for the current devices.
func (l *Loop) Snapshot(ctx context.Context) ([]device.DeviceView, error) {
	reply := make(chan []device.DeviceView, 1)
	select {
	case l.queries <- reply:
	case <-l.done:
		return nil, ErrLoopStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case views := <-reply:
		return views, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
