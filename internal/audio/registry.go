package audio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
)

// Registry enumerates capture devices through the shared miniaudio context
// and reports removals by periodic re-enumeration. miniaudio has no
// portable hotplug notification, so a poll loop diffs successive snapshots.
type Registry struct {
	ctx      *Context
	log      zerolog.Logger
	interval time.Duration

	removals chan domain.DeviceID
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu   sync.Mutex
	seen map[domain.DeviceID]struct{}
}

// NewRegistry starts a registry polling for device removals at the given
// interval (default 2s).
func NewRegistry(ctx *Context, interval time.Duration, log zerolog.Logger) *Registry {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	r := &Registry{
		ctx:      ctx,
		log:      log.With().Str("component", "device_registry").Logger(),
		interval: interval,
		removals: make(chan domain.DeviceID, 8),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		seen:     make(map[domain.DeviceID]struct{}),
	}
	go r.watch()
	return r
}

// List returns a snapshot of available input devices.
func (r *Registry) List(ctx context.Context) ([]domain.DeviceDescriptor, error) {
	devices, err := r.ctx.enumerate(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.seen = make(map[domain.DeviceID]struct{}, len(devices))
	for _, d := range devices {
		r.seen[d.ID] = struct{}{}
	}
	r.mu.Unlock()

	return devices, nil
}

// Default returns the system default input device, falling back to the
// first enumerated device.
func (r *Registry) Default(ctx context.Context) (domain.DeviceDescriptor, bool) {
	devices, err := r.List(ctx)
	if err != nil || len(devices) == 0 {
		return domain.DeviceDescriptor{}, false
	}
	for _, d := range devices {
		if d.IsDefault {
			return d, true
		}
	}
	return devices[0], true
}

// Removals emits ids of devices that disappeared since they were last
// enumerated.
func (r *Registry) Removals() <-chan domain.DeviceID {
	return r.removals
}

// Close stops the removal watcher. The removals channel is closed once the
// watcher exits.
func (r *Registry) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
	return nil
}

func (r *Registry) watch() {
	defer close(r.done)
	defer close(r.removals)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		devices, err := r.ctx.enumerate(context.Background())
		if err != nil {
			r.log.Warn().Err(err).Msg("device re-enumeration failed")
			continue
		}

		present := make(map[domain.DeviceID]struct{}, len(devices))
		for _, d := range devices {
			present[d.ID] = struct{}{}
		}

		r.mu.Lock()
		var removed []domain.DeviceID
		for id := range r.seen {
			if _, ok := present[id]; !ok {
				removed = append(removed, id)
			}
		}
		r.seen = present
		r.mu.Unlock()

		for _, id := range removed {
			r.log.Info().Str("device", string(id)).Msg("device removed")
			select {
			case r.removals <- id:
			default:
			}
		}
	}
}
