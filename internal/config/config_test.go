package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `
# comment lines and blanks are ignored

MQTT_BROKER=tcp://localhost:1883
GAZE_SERIAL_PORT=/dev/ttyUSB0
GAZE_BAUD_RATE=115200

SCREEN_WIDTH=1920
SCREEN_HEIGHT=1080
HOME_X=960
HOME_Y=900
HOME_RADIUS=60

DWELL_MIN_MS=500
DWELL_MAX_MS=1500
FIXATION_RADIUS=40
MAINTAIN_RADIUS=120
FIXATION_MIN_MS=300
FIXATION_MAX_MISSES=3

MAX_REACH_DISTANCE=700
TRIAL_SCHEDULE=free,10,5000,40,practice;reach,20,4000;free,5,5000,30,click
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rig_config.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.MQTTBroker != "tcp://localhost:1883" {
		t.Errorf("broker %q", cfg.MQTTBroker)
	}
	if cfg.GazeBaudRate != 115200 {
		t.Errorf("baud %d", cfg.GazeBaudRate)
	}
	if cfg.HomeX != 960 || cfg.HomeY != 900 || cfg.HomeRadius != 60 {
		t.Errorf("home %v %v %v", cfg.HomeX, cfg.HomeY, cfg.HomeRadius)
	}

	// defaults survive when unset
	if cfg.SampleRateHz != 500 {
		t.Errorf("sample rate default %d", cfg.SampleRateHz)
	}
	if cfg.LookRadiusScale != 2.0 {
		t.Errorf("look radius scale default %v", cfg.LookRadiusScale)
	}
	if cfg.TopicOutcome != "rig/outcome" {
		t.Errorf("outcome topic default %q", cfg.TopicOutcome)
	}
}

func TestTrialScheduleParsing(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(cfg.TrialSchedule) != 3 {
		t.Fatalf("schedule length %d", len(cfg.TrialSchedule))
	}

	first := cfg.TrialSchedule[0]
	if first.Kind != "free" || first.Rounds != 10 || first.TimeoutMS != 5000 ||
		first.Radius != 40 || !first.Practice || first.RequireClick {
		t.Errorf("first spec %+v", first)
	}

	second := cfg.TrialSchedule[1]
	if second.Kind != "reach" || second.Radius != 0 || second.Practice {
		t.Errorf("second spec %+v (radius 0 means adaptive)", second)
	}

	third := cfg.TrialSchedule[2]
	if !third.RequireClick || third.Practice {
		t.Errorf("third spec %+v", third)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown key":        validConfig + "\nNO_SUCH_KEY=1\n",
		"malformed line":     validConfig + "\njust words\n",
		"bad kind":           strings.Replace(validConfig, "free,10", "jump,10", 1),
		"zero rounds":        strings.Replace(validConfig, "free,10", "free,0", 1),
		"missing schedule":   strings.Replace(validConfig, "TRIAL_SCHEDULE", "#TRIAL_SCHEDULE", 1),
		"missing screen":     strings.Replace(validConfig, "SCREEN_WIDTH=1920", "", 1),
		"maintain < fix":     strings.Replace(validConfig, "MAINTAIN_RADIUS=120", "MAINTAIN_RADIUS=10", 1),
		"dwell max < min":    strings.Replace(validConfig, "DWELL_MAX_MS=1500", "DWELL_MAX_MS=100", 1),
		"bad quantile":       validConfig + "\nACCURACY_QUANTILE=1.5\n",
		"negative max reach": strings.Replace(validConfig, "MAX_REACH_DISTANCE=700", "MAX_REACH_DISTANCE=-1", 1),
	}

	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
