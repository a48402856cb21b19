package sensors

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/reach_rig/internal/calibration"
	"github.com/relabs-tech/reach_rig/internal/sample"
)

// MarkerFrame is one motion-capture marker position as published by the
// mocap bridge, in tracker units.
type MarkerFrame struct {
	Marker string  `json:"marker"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Click  bool    `json:"click,omitempty"`
}

// MocapLimb subscribes to a motion-capture marker topic and latches the
// newest frame. The MQTT callback only writes the latch, so Poll stays
// non-blocking regardless of broker cadence.
type MocapLimb struct {
	latch

	name     string
	broker   string
	clientID string
	topic    string
	marker   string

	// calibPath points at the fitted calibration file; empty means the
	// bridge already publishes screen units.
	calibPath string

	client mqtt.Client
}

// NewMocapLimb builds a limb adapter for one named marker.
func NewMocapLimb(name, broker, clientID, topic, marker, calibPath string, home HomeZone) *MocapLimb {
	return &MocapLimb{
		latch:     newLatch(home),
		name:      name,
		broker:    broker,
		clientID:  clientID,
		topic:     topic,
		marker:    marker,
		calibPath: calibPath,
	}
}

func (m *MocapLimb) Name() string { return m.name }

// Establish connects to the broker and subscribes to the marker stream.
func (m *MocapLimb) Establish(_ context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(m.clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mocap MQTT connect: %w", token.Error())
	}

	token := client.Subscribe(m.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f MarkerFrame
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("%s: mocap frame unmarshal error: %v", m.name, err)
			return
		}
		if m.marker != "" && f.Marker != m.marker {
			return
		}
		m.store([]float64{f.X, f.Y, f.Z}, f.Click, time.Now())
	})
	token.Wait()
	if token.Error() != nil {
		client.Disconnect(250)
		return fmt.Errorf("mocap MQTT subscribe %s: %w", m.topic, token.Error())
	}

	m.client = client
	log.Printf("%s: subscribed to mocap topic %s (marker %q)", m.name, m.topic, m.marker)
	return nil
}

// Calibrate reloads the fitted raw to screen transform from disk, so an
// operator recalibrate picks up a freshly written file mid-session.
func (m *MocapLimb) Calibrate() error {
	if m.calibPath == "" {
		m.setTransform(calibration.Identity{})
		return nil
	}
	t, err := calibration.LoadPlanar(m.calibPath)
	if err != nil {
		return err
	}
	m.setTransform(t)
	log.Printf("%s: planar calibration loaded from %s", m.name, m.calibPath)
	return nil
}

func (m *MocapLimb) Available() bool    { return m.available() }
func (m *MocapLimb) Poll() sample.State { return m.poll() }
func (m *MocapLimb) IsHome() bool       { return m.isHome() }
func (m *MocapLimb) Reset()             { m.reset() }

func (m *MocapLimb) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}
