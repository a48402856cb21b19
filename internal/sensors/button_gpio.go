// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Button is the subject's response key on a GPIO pin, active low with the
// internal pull-up. It is not a positional sensor; the rig merges its state
// into the primary manipulator's click channel at snapshot time.
type Button struct {
	name    string
	pinName string
	pin     gpio.PinIO
}

func NewButton(name, pinName string) *Button {
	return &Button{name: name, pinName: pinName}
}

func (b *Button) Name() string { return b.name }

// Establish initializes the periph host and claims the pin.
func (b *Button) Establish(_ context.Context) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}

	pin := gpioreg.ByName(b.pinName)
	if pin == nil {
		return fmt.Errorf("button pin %q not found", b.pinName)
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("button pin %q configure: %w", b.pinName, err)
	}

	b.pin = pin
	log.Printf("%s: response button on GPIO %s", b.name, b.pinName)
	return nil
}

// Pressed reads the pin level directly; a single register read, never blocks.
func (b *Button) Pressed() bool {
	if b.pin == nil {
		return false
	}
	return b.pin.Read() == gpio.Low
}

func (b *Button) Close() error {
	if b.pin == nil {
		return nil
	}
	return b.pin.Halt()
}
