package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"TCP_PORT", "MINIMUM_SPEED_KPH", "SIMEVENT_DIGITAL_INPUTS", "CONFIG_FILE", "MONGODB_URI", "KAFKA_BROKERS", "LINE_TERMINATORS"} {
		t.Setenv(key, "")
	}
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.TCPPort != 31272 || cfg.MinSpeedKPH != 4.0 || cfg.SimulateDigitalInputs != 0xFF {
		t.Errorf("defaults = port %d, speed %v, inputs %#x", cfg.TCPPort, cfg.MinSpeedKPH, cfg.SimulateDigitalInputs)
	}
	if !cfg.EstimateOdometer || !cfg.LocationInMotion || cfg.SimulateGeozones {
		t.Errorf("event defaults = %+v", cfg)
	}
	if cfg.Mongo.Enabled() || cfg.Mongo.Database != "gts" || len(cfg.KafkaBrokers) != 0 {
		t.Errorf("storage defaults = %+v, brokers %v", cfg.Mongo, cfg.KafkaBrokers)
	}
	if cfg.IdleTimeout != 10*time.Minute || cfg.MaxPacketLength != 1024 {
		t.Errorf("transport defaults = %v, %d", cfg.IdleTimeout, cfg.MaxPacketLength)
	}
	if string(cfg.LineTerminators) != "\r\n;" {
		t.Errorf("LineTerminators = %q, want %q", cfg.LineTerminators, "\r\n;")
	}
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TCP_PORT", "5013")
	t.Setenv("SIMEVENT_DIGITAL_INPUTS", "0x1F3")
	t.Setenv("XLATE_LOCATION_INMOTION", "false")
	t.Setenv("MINIMUM_MOVED_METERS", "250.5")
	t.Setenv("IDLE_TIMEOUT", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MINIMUM_SPEED_KPH", "not-a-number")
	t.Setenv("LINE_TERMINATORS", `\n`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.TCPPort != 5013 {
		t.Errorf("TCPPort = %d", cfg.TCPPort)
	}
	if cfg.SimulateDigitalInputs != 0xF3 {
		t.Errorf("SimulateDigitalInputs = %#x, want 0xf3", cfg.SimulateDigitalInputs)
	}
	if cfg.LocationInMotion || cfg.MinimumMovedMeters != 250.5 || cfg.IdleTimeout != 90*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %q", cfg.KafkaBrokers)
	}
	if cfg.MinSpeedKPH != 4.0 {
		t.Errorf("MinSpeedKPH = %v, want default for garbage", cfg.MinSpeedKPH)
	}
	if string(cfg.LineTerminators) != "\n" {
		t.Errorf("LineTerminators = %q, want newline only", cfg.LineTerminators)
	}
}

const sampleFile = `
tcp_port: 31300
minimum_moved_meters: 100
simulate_geozones: true
simulate_digital_inputs: 0x3FF
idle_timeout: 2m
line_terminators: '\r;'
event_codes:
  "help me": 0xF831
  tracker: 0xF020
  " low battery ": -1
geozones:
  - id: depot
    account_id: acme
    latitude: 45.0
    longitude: 7.0
    radius_m: 200
devices:
  - account_id: acme
    device_id: truck1
    unique_id: "359586015829802"
    allowed_ips: ["10.0.0.0/8"]
    odometer_offset_km: 12.5
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(sampleFile), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TCP_PORT", "5013")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.TCPPort != 31300 {
		t.Errorf("TCPPort = %d, want file value", cfg.TCPPort)
	}
	if !cfg.SimulateGeozones || cfg.MinimumMovedMeters != 100 || cfg.SimulateDigitalInputs != 0xFF {
		t.Errorf("event settings = %v %v %#x", cfg.SimulateGeozones, cfg.MinimumMovedMeters, cfg.SimulateDigitalInputs)
	}
	if cfg.IdleTimeout != 2*time.Minute {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout)
	}
	if string(cfg.LineTerminators) != "\r;" {
		t.Errorf("LineTerminators = %q", cfg.LineTerminators)
	}

	codes := map[string]int{"help me": 0xF831, "tracker": 0xF020, "low battery": -1}
	for code, want := range codes {
		if got, ok := cfg.EventCodes[code]; !ok || got != want {
			t.Errorf("EventCodes[%q] = %#x, %v; want %#x", code, got, ok, want)
		}
	}

	if len(cfg.Geozones) != 1 || cfg.Geozones[0].RadiusM != 200 || cfg.Geozones[0].AccountID != "acme" {
		t.Errorf("Geozones = %+v", cfg.Geozones)
	}
	devices := cfg.SeedDevices()
	if len(devices) != 1 {
		t.Fatalf("SeedDevices() = %d devices", len(devices))
	}
	d := devices[0]
	if d.ID != "acme/truck1" || d.UniqueID != "359586015829802" || d.OdometerOffsetKM != 12.5 || len(d.AllowedIPs) != 1 {
		t.Errorf("device = %+v", d)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad port", "tcp_port: 70000"},
		{"tiny packet guard", "max_packet_length: 16"},
		{"geozone without radius", "geozones: [{id: a, latitude: 1, longitude: 1}]"},
		{"device without unique id", "devices: [{account_id: a, device_id: b}]"},
		{"no line terminators", `line_terminators: ""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{TCPPort: 31272, MaxPacketLength: 1024, ForwardQueueSize: 10, LineTerminators: []byte("\n")}
			if err := cfg.apply([]byte(tt.yaml)); err != nil {
				t.Fatalf("apply() error = %v", err)
			}
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestParseTerminators(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`\r\n;`, "\r\n;"},
		{";", ";"},
		{"\r\n", "\r\n"},
		{`\x00#`, "\x00#"},
		{`"`, `"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseTerminators(tt.in); string(got) != tt.want {
				t.Errorf("parseTerminators(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadFileErrors(t *testing.T) {
	cfg := &Config{}
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile(missing) = nil, want error")
	}
	if err := cfg.apply([]byte("tcp_port: [1")); err == nil {
		t.Error("apply(garbage) = nil, want error")
	}
}
