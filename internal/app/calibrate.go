// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/relabs-tech/reach_rig/internal/calibration"
	"github.com/relabs-tech/reach_rig/internal/config"
	"github.com/relabs-tech/reach_rig/internal/render"
	"github.com/relabs-tech/reach_rig/internal/sample"
	"github.com/relabs-tech/reach_rig/internal/sensors"
	"github.com/relabs-tech/reach_rig/internal/stimulus"
)

const (
	calSettleTime  = 2 * time.Second
	calCaptureTime = 1 * time.Second
	calPollEvery   = 10 * time.Millisecond
	// raw-unit spread above which a capture point is flagged as noisy
	calStddevWarn = 15.0
)

// pointStats accumulates the raw samples captured at one grid target.
type pointStats struct {
	xs, ys []float64
}

func (s *pointStats) add(raw []float64) {
	s.xs = append(s.xs, raw[0])
	s.ys = append(s.ys, raw[1])
}

func (s *pointStats) count() int { return len(s.xs) }

func (s *pointStats) mean() (float64, float64) {
	return meanOf(s.xs), meanOf(s.ys)
}

func (s *pointStats) stddev() (float64, float64) {
	return stddevOf(s.xs), stddevOf(s.ys)
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func stddevOf(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	m := meanOf(v)
	var sum float64
	for _, x := range v {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(v)-1))
}

// RunScreenCalibration walks a 3x3 target grid, captures the chosen sensor's
// raw samples while the subject holds each target, fits the planar raw to
// screen transform, and writes the timestamped calibration file the rig
// loads at session start.
//
// sensorName selects "gaze" or "hand".
func RunScreenCalibration(sensorName string) error {
	cfg := config.Get()

	home := sensors.HomeZone{
		Center: sample.Point{X: cfg.HomeX, Y: cfg.HomeY},
		Radius: cfg.HomeRadius,
	}

	// The sensor runs uncalibrated here; Poll carries the raw channels.
	var dev sensors.Sensor
	switch sensorName {
	case "gaze":
		dev = sensors.NewSerialGaze("gaze", cfg.GazeSerialPort, cfg.GazeBaudRate, "", home)
	case "hand":
		dev = sensors.NewMocapLimb("hand", cfg.MQTTBroker, cfg.MQTTClientIDMocap,
			cfg.TopicMocap, cfg.MocapMarker, "", home)
	default:
		return fmt.Errorf("unknown calibration sensor %q (want gaze or hand)", sensorName)
	}

	if err := dev.Establish(context.Background()); err != nil {
		return err
	}
	defer dev.Close()
	if err := dev.Calibrate(); err != nil {
		return err
	}

	ws := render.NewWS()
	mux := http.NewServeMux()
	mux.HandleFunc("/display", ws.Handler)
	mux.Handle("/", http.FileServer(http.Dir("web")))
	go func() {
		addr := fmt.Sprintf(":%d", cfg.DisplayWSPort)
		log.Printf("calibration: display server listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("calibration: display server: %v", err)
		}
	}()

	grid := calibrationGrid(cfg.ScreenWidth, cfg.ScreenHeight)
	log.Printf("calibration: %s, %d grid targets, settle %s capture %s",
		sensorName, len(grid), calSettleTime, calCaptureTime)

	pairs := make([]calibration.PointPair, 0, len(grid))

	for i, target := range grid {
		ws.DrawElements([]stimulus.Element{{
			Shape:    stimulus.ShapeCircle,
			Location: target,
			Size:     12,
			Color:    "#ffffff",
		}})
		ws.ScheduleAsync()
		log.Printf("calibration: target %d/%d at (%.0f, %.0f), settling", i+1, len(grid), target.X, target.Y)
		time.Sleep(calSettleTime)

		stats := &pointStats{}
		deadline := time.Now().Add(calCaptureTime)
		for time.Now().Before(deadline) {
			st := dev.Poll()
			if st.Valid() && len(st.Raw) >= 2 {
				stats.add(st.Raw)
			}
			time.Sleep(calPollEvery)
		}

		if stats.count() == 0 {
			return fmt.Errorf("calibration: no valid samples at target %d, aborting", i+1)
		}

		mx, my := stats.mean()
		sx, sy := stats.stddev()
		if sx > calStddevWarn || sy > calStddevWarn {
			log.Printf("calibration: WARNING target %d noisy (stddev %.1f, %.1f raw units)", i+1, sx, sy)
		}
		log.Printf("calibration: target %d captured n=%d raw mean (%.1f, %.1f)", i+1, stats.count(), mx, my)

		pairs = append(pairs, calibration.PointPair{Raw: []float64{mx, my}, Screen: target})
	}

	ws.EmptyScreen()
	ws.ScheduleAsync()

	t, rms, err := calibration.FitPlanar(pairs)
	if err != nil {
		return fmt.Errorf("calibration fit: %w", err)
	}
	conf := calibration.ResidualConfidence(rms)
	log.Printf("calibration: fitted, residual RMS %.2f px, confidence %.2f", rms, conf)

	path, err := calibration.WriteResult(cfg.OutputDir, calibration.Result{
		Sensor:        sensorName,
		TransformKind: t.Kind(),
		Planar:        &t,
		ResidualRMS:   rms,
		Confidence:    conf,
		Pairs:         len(pairs),
	})
	if err != nil {
		return err
	}
	log.Printf("calibration: wrote %s", path)
	log.Printf("calibration: point the sensor's CALIBRATION_FILE key at it and restart the rig")
	return nil
}

// calibrationGrid lays a 3x3 target grid inset 10% from the screen edges.
func calibrationGrid(w, h float64) []sample.Point {
	xs := []float64{0.1 * w, 0.5 * w, 0.9 * w}
	ys := []float64{0.1 * h, 0.5 * h, 0.9 * h}
	grid := make([]sample.Point, 0, 9)
	for _, y := range ys {
		for _, x := range xs {
			grid = append(grid, sample.Point{X: x, Y: y})
		}
	}
	return grid
}
