// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package operator

import (
	"fmt"
	"log"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/reach_rig/internal/config"
)

// Signal is an asynchronous operator request. The sampling loop drains
// pending signals between iterations, so a signal never interrupts a poll.
type Signal int

const (
	None Signal = iota
	DriftCorrect
	Recalibrate
	Terminate
)

func (s Signal) String() string {
	switch s {
	case DriftCorrect:
		return "drift-correct"
	case Recalibrate:
		return "recalibrate"
	case Terminate:
		return "terminate"
	default:
		return "none"
	}
}

// Source delivers pending operator signals without blocking.
type Source interface {
	// Pending returns the highest-priority pending signal and clears it.
	// Terminate outranks recalibrate outranks drift-correct.
	Pending() Signal
	Close()
}

// Signals is the shared latch both sources write into. Each flag is sticky
// until drained, so a signal raised mid-round is acted on at the next
// loop iteration rather than lost.
type Signals struct {
	drift     atomic.Bool
	recal     atomic.Bool
	terminate atomic.Bool
}

func (s *Signals) Raise(sig Signal) {
	switch sig {
	case DriftCorrect:
		s.drift.Store(true)
	case Recalibrate:
		s.recal.Store(true)
	case Terminate:
		s.terminate.Store(true)
	}
}

func (s *Signals) Pending() Signal {
	if s.terminate.Swap(false) {
		return Terminate
	}
	if s.recal.Swap(false) {
		return Recalibrate
	}
	if s.drift.Swap(false) {
		return DriftCorrect
	}
	return None
}

func (s *Signals) Close() {}

// MQTTSource subscribes to the operator topics and raises the matching
// signal on any message. Payloads are ignored; the topic is the command.
type MQTTSource struct {
	Signals
	client mqtt.Client
}

// NewMQTTSource connects to the broker and subscribes the three operator
// topics from cfg.
func NewMQTTSource(cfg *config.Config) (*MQTTSource, error) {
	src := &MQTTSource{}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDRig + "-operator").
		SetAutoReconnect(true)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("operator: mqtt connection lost: %v", err)
	}

	src.client = mqtt.NewClient(opts)
	if token := src.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("operator: connect %s: %w", cfg.MQTTBroker, token.Error())
	}

	subs := map[string]Signal{
		cfg.TopicOpDrift:     DriftCorrect,
		cfg.TopicOpRecal:     Recalibrate,
		cfg.TopicOpTerminate: Terminate,
	}
	for topic, sig := range subs {
		sig := sig
		token := src.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			log.Printf("operator: %s requested (topic %s)", sig, msg.Topic())
			src.Raise(sig)
		})
		if token.Wait() && token.Error() != nil {
			src.client.Disconnect(250)
			return nil, fmt.Errorf("operator: subscribe %s: %w", topic, token.Error())
		}
	}
	return src, nil
}

func (s *MQTTSource) Close() {
	s.client.Disconnect(250)
}
