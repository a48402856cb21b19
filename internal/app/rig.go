// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/reach_rig/internal/config"
	"github.com/relabs-tech/reach_rig/internal/gate"
	"github.com/relabs-tech/reach_rig/internal/operator"
	"github.com/relabs-tech/reach_rig/internal/recorder"
	"github.com/relabs-tech/reach_rig/internal/render"
	"github.com/relabs-tech/reach_rig/internal/runner"
	"github.com/relabs-tech/reach_rig/internal/sample"
	"github.com/relabs-tech/reach_rig/internal/sensors"
)

// RunRig wires the full trial rig and executes the configured schedule.
func RunRig() error {
	log.Println("starting reach-rig trial session")

	cfg := config.Get()

	home := sensors.HomeZone{
		Center: sample.Point{X: cfg.HomeX, Y: cfg.HomeY},
		Radius: cfg.HomeRadius,
	}

	gaze := sensors.NewSerialGaze("gaze", cfg.GazeSerialPort, cfg.GazeBaudRate, cfg.GazeCalibFile, home)
	hand := sensors.NewMocapLimb("hand", cfg.MQTTBroker, cfg.MQTTClientIDMocap,
		cfg.TopicMocap, cfg.MocapMarker, cfg.MocapCalibFile, home)

	rig := &sensors.Rig{Eye: gaze, Limbs: []sensors.Sensor{hand}}
	if cfg.ButtonGPIOPin != "" {
		rig.Button = sensors.NewButton("button", cfg.ButtonGPIOPin)
	}

	if err := rig.EstablishAll(context.Background()); err != nil {
		return err
	}
	defer rig.CloseAll()

	if err := rig.CalibrateAll(); err != nil {
		return err
	}

	ops, err := operator.NewMQTTSource(cfg)
	if err != nil {
		return err
	}
	defer ops.Close()

	// Ctrl+C behaves like an operator terminate: the round ends, the
	// dataset gets written, the rig tears down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("rig: interrupt, terminating session")
		ops.Raise(operator.Terminate)
	}()

	// Stimulus display clients connect to the rig over websocket.
	ws := render.NewWS()
	mux := http.NewServeMux()
	mux.HandleFunc("/display", ws.Handler)
	mux.Handle("/", http.FileServer(http.Dir("web")))
	go func() {
		addr := fmt.Sprintf(":%d", cfg.DisplayWSPort)
		log.Printf("rig: display server listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("rig: display server: %v", err)
		}
	}()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	g := gate.New(gate.Config{
		Fixation:       home.Center,
		FixationRadius: cfg.FixationRadius,
		MaintainRadius: cfg.MaintainRadius,
		FixationMin:    time.Duration(cfg.FixationMinMS) * time.Millisecond,
		MaxMisses:      cfg.FixationMaxMiss,
		DwellMin:       time.Duration(cfg.DwellMinMS) * time.Millisecond,
		DwellMax:       time.Duration(cfg.DwellMaxMS) * time.Millisecond,
	}, rng)

	run := runner.New(rig, ws, g, ops, runner.Params{
		Fixation:         home.Center,
		SampleRateHz:     cfg.SampleRateHz,
		RenderInterval:   time.Duration(cfg.RenderIntervalMS) * time.Millisecond,
		FeedbackDuration: 500 * time.Millisecond,
	})

	rec := recorder.New(cfg.OutputDir)
	sess := runner.NewSession(cfg, rig, run, rec, rng)

	// Live outcome telemetry for the monitor and observer surfaces.
	pub, err := connectPublisher(cfg)
	if err != nil {
		log.Printf("rig: outcome publisher unavailable, continuing without: %v", err)
	} else {
		defer pub.Disconnect(250)
		sess.OnOutcome = func(r recorder.RoundRecord) {
			payload, err := json.Marshal(outcomeEvent(r))
			if err != nil {
				log.Printf("rig: outcome marshal error: %v", err)
				return
			}
			if token := pub.Publish(cfg.TopicOutcome, 0, true, payload); token.Wait() && token.Error() != nil {
				log.Printf("rig: outcome publish error: %v", token.Error())
			}
		}
	}

	return sess.Run()
}

func connectPublisher(cfg *config.Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDRig)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("rig: connected to MQTT broker at %s", cfg.MQTTBroker)
	return client, nil
}
