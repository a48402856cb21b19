package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/reach_rig/internal/config"
)

// RunObserverWeb serves a read-only session view for people outside the
// testing booth: latest round outcome plus running totals, fed from the
// outcome topic.
func RunObserverWeb() error {
	cfg := config.Get()

	var (
		mu        sync.RWMutex
		lastEvent OutcomeEvent
		haveEvent bool
		counts    = map[string]int{"success": 0, "timeout": 0, "failure": 0}
	)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDMonitor + "-web")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicOutcome, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ev OutcomeEvent
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Printf("web: outcome unmarshal error: %v", err)
			return
		}
		mu.Lock()
		lastEvent = ev
		haveEvent = true
		switch ev.Outcome {
		case 1:
			counts["success"]++
		case -1:
			counts["failure"]++
		default:
			counts["timeout"]++
		}
		mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to %s", cfg.TopicOutcome)

	// JSON API: latest outcome
	http.HandleFunc("/api/outcome", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		if !haveEvent {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(lastEvent); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// JSON API: running totals
	http.HandleFunc("/api/totals", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(counts); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: observer server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
