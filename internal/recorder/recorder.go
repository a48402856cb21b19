// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package recorder

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/relabs-tech/reach_rig/internal/stimulus"
)

const schemaVersion = 1

// TracePoint is one sampled observation in a round's movement trace.
// T is seconds since the round's stimulus onset.
type TracePoint struct {
	T     float64 `json:"t"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z,omitempty"`
	Click bool    `json:"click,omitempty"`
}

// RoundRecord is everything persisted for one executed round attempt.
// Retried attempts get their own record with Retry set; the original
// attempt's record is kept too.
type RoundRecord struct {
	Trial    int    `json:"trial"`
	Round    int    `json:"round"`
	Kind     string `json:"kind"`
	Practice bool   `json:"practice,omitempty"`
	Retry    bool   `json:"retry,omitempty"`

	Elements []stimulus.Element `json:"elements"`
	Target   stimulus.Zone      `json:"target"`
	FailZone *stimulus.Zone     `json:"fail_zone,omitempty"`

	// Outcome codes: 1 success, 0 timeout, -1 failure.
	Outcome int `json:"outcome"`

	StartedAt time.Time `json:"started_at"`
	Duration  float64   `json:"duration_s"`

	// Traces keyed by sensor name, in screen units, trimmed to the samples
	// actually collected.
	Traces map[string][]TracePoint `json:"traces"`
}

// Dataset is the session output document.
type Dataset struct {
	SchemaVersion int                `json:"schema_version"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
	Thresholds    map[string]float64 `json:"thresholds,omitempty"`
	Rounds        []RoundRecord      `json:"rounds"`
}

// Recorder accumulates round records in memory and writes the dataset once
// at session end. A session is minutes long and traces are bounded by the
// round timeouts, so buffering the whole thing is fine.
type Recorder struct {
	outputDir string
	dataset   Dataset
}

func New(outputDir string) *Recorder {
	return &Recorder{
		outputDir: outputDir,
		dataset: Dataset{
			SchemaVersion: schemaVersion,
			StartedAt:     time.Now(),
		},
	}
}

// Add appends one executed round attempt.
func (r *Recorder) Add(rec RoundRecord) {
	r.dataset.Rounds = append(r.dataset.Rounds, rec)
}

// SetThresholds stores the fitted adaptive radii for the dataset header.
func (r *Recorder) SetThresholds(t map[string]float64) {
	r.dataset.Thresholds = t
}

// Rounds reports how many round attempts have been recorded.
func (r *Recorder) Rounds() int { return len(r.dataset.Rounds) }

// Write persists the dataset to a timestamped JSON file and returns its
// path. Called exactly once, at session teardown, including after an
// operator terminate.
func (r *Recorder) Write() (string, error) {
	r.dataset.FinishedAt = time.Now()

	name := fmt.Sprintf("%s_session_dataset.json", r.dataset.StartedAt.Format("2006-01-02_15-04-05"))
	path := filepath.Join(r.outputDir, name)

	data, err := json.MarshalIndent(&r.dataset, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal dataset: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write dataset: %w", err)
	}
	log.Printf("recorder: wrote %d rounds to %s", len(r.dataset.Rounds), path)
	return path, nil
}
