package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/reach_rig/internal/config"
	"github.com/relabs-tech/reach_rig/internal/sensors"
)

// RunMonitor tails the session over MQTT and prints one line per event.
// Runs on the operator's machine, next to the commands that publish the
// operator topics.
func RunMonitor() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDMonitor)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("monitor: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to round outcomes
	outcomeToken := client.Subscribe(cfg.TopicOutcome, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ev OutcomeEvent
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Printf("monitor: outcome unmarshal error: %v", err)
			return
		}

		tag := " "
		switch ev.Outcome {
		case 1:
			tag = "+"
		case -1:
			tag = "-"
		case 0:
			tag = "T"
		}
		flags := ""
		if ev.Practice {
			flags += " practice"
		}
		if ev.Retry {
			flags += " retry"
		}
		fmt.Printf(
			"[ROUND] %s trial=%d round=%d kind=%-9s outcome=%2d dur=%5.2fs%s\n",
			tag, ev.Trial, ev.Round, ev.Kind, ev.Outcome, ev.Duration, flags,
		)
	})
	outcomeToken.Wait()
	if outcomeToken.Error() != nil {
		return outcomeToken.Error()
	}
	log.Printf("monitor: subscribed to %s", cfg.TopicOutcome)

	// Subscribe to the mocap stream for a live position readout
	mocapToken := client.Subscribe(cfg.TopicMocap, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f sensors.MarkerFrame
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("monitor: mocap unmarshal error: %v", err)
			return
		}
		fmt.Printf(
			"[MOCAP] marker=%-8s x=%8.1f y=%8.1f z=%8.1f click=%v\n",
			f.Marker, f.X, f.Y, f.Z, f.Click,
		)
	})
	mocapToken.Wait()
	if mocapToken.Error() != nil {
		return mocapToken.Error()
	}
	log.Printf("monitor: subscribed to %s", cfg.TopicMocap)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("monitor: shutting down")
	client.Disconnect(250)
	return nil
}
