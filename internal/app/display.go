package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/reach_rig/internal/config"
)

// displayData holds the latest session state shown on the panel
type displayData struct {
	mu sync.RWMutex

	last     OutcomeEvent
	haveLast bool

	success int
	timeout int
	failure int
}

// RunStatusDisplay drives the small OLED panel mounted on the rig frame so
// the experimenter can see session progress without the observer web page.
func RunStatusDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize status display: %w", err)
	}
	log.Printf("display: status panel initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	// Connect to MQTT
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicOutcome, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ev OutcomeEvent
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Printf("display: outcome unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.last = ev
		data.haveLast = true
		switch ev.Outcome {
		case 1:
			data.success++
		case -1:
			data.failure++
		default:
			data.timeout++
		}
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicOutcome)

	interval := cfg.DisplayUpdateInterval
	if interval <= 0 {
		interval = 500
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		snapshot := displayData{
			last:     data.last,
			haveLast: data.haveLast,
			success:  data.success,
			timeout:  data.timeout,
			failure:  data.failure,
		}
		data.mu.RUnlock()

		if err := updateStatusDisplay(dev, &snapshot); err != nil {
			log.Printf("display: error updating panel: %v", err)
		}
	}

	return nil
}

func updateStatusDisplay(dev *ssd1306.Dev, data *displayData) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if !data.haveLast {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Session"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
	} else {
		tag := "TMO"
		switch data.last.Outcome {
		case 1:
			tag = "OK "
		case -1:
			tag = "ERR"
		}
		drawer.Dot = fixed.P(0, 13)
		drawer.DrawBytes([]byte(fmt.Sprintf("T%d R%d %s", data.last.Trial, data.last.Round, tag)))

		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte(data.last.Kind))

		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte(fmt.Sprintf("+%d -%d t%d", data.success, data.failure, data.timeout)))

		drawer.Dot = fixed.P(0, 52)
		drawer.DrawBytes([]byte(fmt.Sprintf("%.2fs", data.last.Duration)))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Reach Rig"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("Waiting for"))

	drawer.Dot = fixed.P(25, 56)
	drawer.DrawBytes([]byte("rounds"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
