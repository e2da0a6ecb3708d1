package sim

import (
	"errors"
	"fmt"
	"log"
)

// Builder can help building bridges.
type Builder struct {
	engine Engine
	idGen  IDGenerator
	logger *log.Logger
}

// MakeBuilder returns a builder with the default settings.
func MakeBuilder() Builder {
	return Builder{}
}

// WithEngine sets the engine that the bridge serves.
func (b Builder) WithEngine(e Engine) Builder {
	b.engine = e
	return b
}

// WithIDGenerator sets the generator of cycle IDs. Sequential IDs are used
// by default.
func (b Builder) WithIDGenerator(g IDGenerator) Builder {
	b.idGen = g
	return b
}

// WithLogger sets the logger that reports failed notification cycles.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

// Build opens a handle on the engine and creates the bridge. The bridge is
// not started.
func (b Builder) Build() (*Bridge, error) {
	if b.engine == nil {
		return nil, errors.New("bridge requires an engine")
	}

	bridge := &Bridge{
		idGen:   b.idGen,
		logger:  b.logger,
		wakeups: make(chan wakeup, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	if bridge.idGen == nil {
		bridge.idGen = NewSequentialIDGenerator()
	}

	if bridge.logger == nil {
		bridge.logger = log.Default()
	}

	handle, err := b.engine.Open(bridge)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineRefused, err)
	}

	if handle == nil {
		return nil, ErrEngineRefused
	}

	bridge.handle = handle

	return bridge, nil
}
