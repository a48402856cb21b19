package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// TrialSpec is one entry of the TRIAL_SCHEDULE key:
// kind,rounds,timeout_ms[,radius][,practice]
type TrialSpec struct {
	Kind      string
	Rounds    int
	TimeoutMS int
	// Radius 0 means "use the adaptive threshold for this kind".
	Radius       float64
	Practice     bool
	RequireClick bool
}

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDRig     string
	MQTTClientIDMonitor string
	MQTTClientIDDisplay string
	MQTTClientIDMocap   string

	// Topics
	TopicOutcome     string
	TopicMocap       string
	TopicOpDrift     string
	TopicOpRecal     string
	TopicOpTerminate string

	// Gaze tracker serial link
	GazeSerialPort string
	GazeBaudRate   int
	GazeCalibFile  string

	// Motion capture
	MocapMarker    string
	MocapCalibFile string

	// Response button
	ButtonGPIOPin string

	// Screen geometry (pixels)
	ScreenWidth  float64
	ScreenHeight float64

	// Home zone
	HomeX      float64
	HomeY      float64
	HomeRadius float64

	// Pre-round gate
	DwellMinMS      int
	DwellMaxMS      int
	FixationRadius  float64
	MaintainRadius  float64
	FixationMinMS   int
	FixationMaxMiss int

	// Sampling loop
	SampleRateHz     int // maximum sample rate; sizes trace buffers
	RenderIntervalMS int

	// Trial behavior
	LookRadiusScale  float64
	AccuracyQuantile float64
	MaxReachDistance float64
	TrialSchedule    []TrialSpec

	// Observer web server
	WebServerPort int

	// Stimulus display websocket server (served by the rig process)
	DisplayWSPort int

	// Status display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Output
	OutputDir string
}

// Package-level unexported variables for singleton pattern. External code
// must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		TopicOutcome:     "rig/outcome",
		TopicMocap:       "rig/mocap",
		TopicOpDrift:     "rig/operator/drift",
		TopicOpRecal:     "rig/operator/recalibrate",
		TopicOpTerminate: "rig/operator/terminate",
		LookRadiusScale:  2.0,
		AccuracyQuantile: 0.95,
		SampleRateHz:     500,
		RenderIntervalMS: 16,
		WebServerPort:    8080,
		DisplayWSPort:    8081,
		OutputDir:        ".",
	}
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_RIG":
		c.MQTTClientIDRig = value
	case "MQTT_CLIENT_ID_MONITOR":
		c.MQTTClientIDMonitor = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_MOCAP":
		c.MQTTClientIDMocap = value

	// Topics
	case "TOPIC_OUTCOME":
		c.TopicOutcome = value
	case "TOPIC_MOCAP":
		c.TopicMocap = value
	case "TOPIC_OPERATOR_DRIFT":
		c.TopicOpDrift = value
	case "TOPIC_OPERATOR_RECALIBRATE":
		c.TopicOpRecal = value
	case "TOPIC_OPERATOR_TERMINATE":
		c.TopicOpTerminate = value

	// Gaze tracker
	case "GAZE_SERIAL_PORT":
		c.GazeSerialPort = value
	case "GAZE_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GAZE_BAUD_RATE %q: %w", value, err)
		}
		c.GazeBaudRate = rate
	case "GAZE_CALIBRATION_FILE":
		c.GazeCalibFile = value

	// Motion capture
	case "MOCAP_MARKER":
		c.MocapMarker = value
	case "MOCAP_CALIBRATION_FILE":
		c.MocapCalibFile = value

	// Button
	case "BUTTON_GPIO_PIN":
		c.ButtonGPIOPin = value

	// Screen
	case "SCREEN_WIDTH":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SCREEN_WIDTH %q: %w", value, err)
		}
		c.ScreenWidth = v
	case "SCREEN_HEIGHT":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SCREEN_HEIGHT %q: %w", value, err)
		}
		c.ScreenHeight = v

	// Home zone
	case "HOME_X":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid HOME_X %q: %w", value, err)
		}
		c.HomeX = v
	case "HOME_Y":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid HOME_Y %q: %w", value, err)
		}
		c.HomeY = v
	case "HOME_RADIUS":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid HOME_RADIUS %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("HOME_RADIUS must be > 0, got %v", v)
		}
		c.HomeRadius = v

	// Gate
	case "DWELL_MIN_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DWELL_MIN_MS %q: %w", value, err)
		}
		c.DwellMinMS = v
	case "DWELL_MAX_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DWELL_MAX_MS %q: %w", value, err)
		}
		c.DwellMaxMS = v
	case "FIXATION_RADIUS":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FIXATION_RADIUS %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("FIXATION_RADIUS must be > 0, got %v", v)
		}
		c.FixationRadius = v
	case "MAINTAIN_RADIUS":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAINTAIN_RADIUS %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("MAINTAIN_RADIUS must be > 0, got %v", v)
		}
		c.MaintainRadius = v
	case "FIXATION_MIN_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid FIXATION_MIN_MS %q: %w", value, err)
		}
		c.FixationMinMS = v
	case "FIXATION_MAX_MISSES":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid FIXATION_MAX_MISSES %q: %w", value, err)
		}
		if v < 0 {
			return fmt.Errorf("FIXATION_MAX_MISSES must be >= 0, got %d", v)
		}
		c.FixationMaxMiss = v

	// Sampling loop
	case "SAMPLE_RATE_HZ":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_RATE_HZ %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("SAMPLE_RATE_HZ must be > 0, got %d", v)
		}
		c.SampleRateHz = v
	case "RENDER_INTERVAL_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid RENDER_INTERVAL_MS %q: %w", value, err)
		}
		c.RenderIntervalMS = v

	// Trial behavior
	case "LOOK_RADIUS_SCALE":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid LOOK_RADIUS_SCALE %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("LOOK_RADIUS_SCALE must be > 0, got %v", v)
		}
		c.LookRadiusScale = v
	case "ACCURACY_QUANTILE":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid ACCURACY_QUANTILE %q: %w", value, err)
		}
		if v <= 0 || v >= 1 {
			return fmt.Errorf("ACCURACY_QUANTILE must be in (0,1), got %v", v)
		}
		c.AccuracyQuantile = v
	case "MAX_REACH_DISTANCE":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_REACH_DISTANCE %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("MAX_REACH_DISTANCE must be > 0, got %v", v)
		}
		c.MaxReachDistance = v
	case "TRIAL_SCHEDULE":
		specs, err := parseTrialSchedule(value)
		if err != nil {
			return fmt.Errorf("invalid TRIAL_SCHEDULE: %w", err)
		}
		c.TrialSchedule = specs

	// Web server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "DISPLAY_WS_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_WS_PORT %q: %w", value, err)
		}
		c.DisplayWSPort = port

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	// Output
	case "OUTPUT_DIR":
		c.OutputDir = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// parseTrialSchedule parses entries separated by ';', each
// kind,rounds,timeout_ms[,radius][,practice].
func parseTrialSchedule(value string) ([]TrialSpec, error) {
	var specs []TrialSpec
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ",")
		if len(fields) < 3 {
			return nil, fmt.Errorf("entry %q needs at least kind,rounds,timeout_ms", entry)
		}
		spec := TrialSpec{Kind: strings.TrimSpace(fields[0])}
		switch spec.Kind {
		case "look", "reach", "free", "segmented":
		default:
			return nil, fmt.Errorf("entry %q: unknown trial kind %q", entry, spec.Kind)
		}
		rounds, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil || rounds <= 0 {
			return nil, fmt.Errorf("entry %q: bad round count", entry)
		}
		spec.Rounds = rounds
		timeout, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("entry %q: bad timeout", entry)
		}
		spec.TimeoutMS = timeout
		for _, extra := range fields[3:] {
			extra = strings.TrimSpace(extra)
			if extra == "practice" {
				spec.Practice = true
				continue
			}
			if extra == "click" {
				spec.RequireClick = true
				continue
			}
			radius, err := strconv.ParseFloat(extra, 64)
			if err != nil || radius <= 0 {
				return nil, fmt.Errorf("entry %q: bad radius %q", entry, extra)
			}
			spec.Radius = radius
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("empty schedule")
	}
	return specs, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.ScreenWidth == 0 || c.ScreenHeight == 0 {
		return fmt.Errorf("SCREEN_WIDTH and SCREEN_HEIGHT are required")
	}
	if c.HomeRadius == 0 {
		return fmt.Errorf("HOME_RADIUS is required")
	}
	if c.FixationRadius == 0 || c.MaintainRadius == 0 {
		return fmt.Errorf("FIXATION_RADIUS and MAINTAIN_RADIUS are required")
	}
	if c.MaintainRadius < c.FixationRadius {
		return fmt.Errorf("MAINTAIN_RADIUS must be >= FIXATION_RADIUS")
	}
	if c.DwellMinMS <= 0 || c.DwellMaxMS < c.DwellMinMS {
		return fmt.Errorf("DWELL_MIN_MS/DWELL_MAX_MS must satisfy 0 < min <= max")
	}
	if c.MaxReachDistance == 0 {
		return fmt.Errorf("MAX_REACH_DISTANCE is required")
	}
	if len(c.TrialSchedule) == 0 {
		return fmt.Errorf("TRIAL_SCHEDULE is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
