package sim

import (
	"errors"
	"fmt"
)

// ErrShutdown is returned when the bridge has been shut down.
var ErrShutdown = errors.New("bridge is shut down")

// ErrEngineRefused is returned when the engine does not accept a bridge.
var ErrEngineRefused = errors.New("engine refused the bridge")

// ErrAlreadyStarted is returned when a bridge is started twice.
var ErrAlreadyStarted = errors.New("bridge already started")

// A DeviceError reports a device that panicked while being updated.
type DeviceError struct {
	// Index is the registration position of the device.
	Index int

	// Name is the device name, if the device has one.
	Name string

	// Value is what the device panicked with.
	Value any
}

func (e *DeviceError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("device %d (%s) failed: %v", e.Index, e.Name, e.Value)
	}

	return fmt.Sprintf("device %d failed: %v", e.Index, e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *DeviceError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
