package audio

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
)

// Context owns the shared miniaudio context used by the device registry and
// the capture source.
type Context struct {
	mctx *malgo.AllocatedContext

	mu    sync.Mutex
	known map[domain.DeviceID]malgo.DeviceID
}

// NewContext initializes the platform audio layer.
func NewContext() (*Context, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, &domain.DeviceEnumerationError{Err: err}
	}
	return &Context{
		mctx:  mctx,
		known: make(map[domain.DeviceID]malgo.DeviceID),
	}, nil
}

// Close tears down the audio layer. All capture sessions must be closed
// first.
func (c *Context) Close() error {
	if err := c.mctx.Uninit(); err != nil {
		return err
	}
	c.mctx.Free()
	return nil
}

// enumerate queries capture devices and refreshes the id lookup table.
func (c *Context) enumerate(_ context.Context) ([]domain.DeviceDescriptor, error) {
	infos, err := c.mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, &domain.DeviceEnumerationError{Err: err}
	}

	descriptors := make([]domain.DeviceDescriptor, 0, len(infos))
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range infos {
		info := infos[i]
		id := deviceID(info.ID)
		c.known[id] = info.ID
		descriptors = append(descriptors, domain.DeviceDescriptor{
			ID:        id,
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
			// miniaudio converts capture data to whatever format the
			// device is opened with, so the effective capability is the
			// standard capture range.
			MinChannels:   1,
			MaxChannels:   2,
			MinSampleRate: 8000,
			MaxSampleRate: 48000,
		})
	}
	return descriptors, nil
}

// lookup resolves an opaque device id back to the platform identifier.
func (c *Context) lookup(ctx context.Context, id domain.DeviceID) (malgo.DeviceID, bool) {
	c.mu.Lock()
	raw, ok := c.known[id]
	c.mu.Unlock()
	if ok {
		return raw, true
	}

	// Not seen yet; refresh the snapshot once.
	if _, err := c.enumerate(ctx); err != nil {
		return malgo.DeviceID{}, false
	}
	c.mu.Lock()
	raw, ok = c.known[id]
	c.mu.Unlock()
	return raw, ok
}

func deviceID(raw malgo.DeviceID) domain.DeviceID {
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return domain.DeviceID(hex.EncodeToString(raw[:end]))
}
