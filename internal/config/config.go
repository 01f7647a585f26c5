package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"tkgateway/internal/core/model"
)

// The digital-input interest mask covers the first eight inputs only.
const inputInterestMask = 0xFF

// TK103-2 devices close lines with ';' and often omit the newline.
const defaultLineTerminators = `\r\n;`

type Config struct {
	TCPPort        int
	MetricsPort    int
	LogLevel       string
	LogDevelopment bool
	ServerID       string

	Mongo    MongoConfig
	RedisURL string

	MinSpeedKPH           float64
	EstimateOdometer      bool
	SimulateGeozones      bool
	SimulateDigitalInputs int64
	LocationInMotion      bool
	MinimumMovedMeters    float64

	PacketLenEndOfStream bool
	LineTerminators      []byte
	IdleTimeout          time.Duration
	MaxPacketLength      int

	KafkaBrokers []string
	KafkaTopic   string

	MQTTBrokerURL string
	MQTTClientID  string
	MQTTTopic     string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	ForwardQueueSize int

	EventCodes map[string]int
	Geozones   []*model.Geozone
	Devices    []DeviceSeed
}

// DeviceSeed is a device entry of the configuration file.
type DeviceSeed struct {
	AccountID        string   `yaml:"account_id"`
	DeviceID         string   `yaml:"device_id"`
	UniqueID         string   `yaml:"unique_id"`
	Description      string   `yaml:"description"`
	AllowedIPs       []string `yaml:"allowed_ips"`
	OdometerOffsetKM float64  `yaml:"odometer_offset_km"`
}

// fileConfig mirrors the YAML file. Pointer fields are only applied when set.
type fileConfig struct {
	TCPPort               *int             `yaml:"tcp_port"`
	MetricsPort           *int             `yaml:"metrics_port"`
	LogLevel              *string          `yaml:"log_level"`
	ServerID              *string          `yaml:"server_id"`
	MinSpeedKPH           *float64         `yaml:"minimum_speed_kph"`
	EstimateOdometer      *bool            `yaml:"estimate_odometer"`
	SimulateGeozones      *bool            `yaml:"simulate_geozones"`
	SimulateDigitalInputs *int64           `yaml:"simulate_digital_inputs"`
	LocationInMotion      *bool            `yaml:"location_in_motion"`
	MinimumMovedMeters    *float64         `yaml:"minimum_moved_meters"`
	PacketLenEndOfStream  *bool            `yaml:"packet_len_end_of_stream"`
	LineTerminators       *string          `yaml:"line_terminators"`
	IdleTimeout           *time.Duration   `yaml:"idle_timeout"`
	MaxPacketLength       *int             `yaml:"max_packet_length"`
	EventCodes            map[string]int   `yaml:"event_codes"`
	Geozones              []*model.Geozone `yaml:"geozones"`
	Devices               []DeviceSeed     `yaml:"devices"`
}

// LoadConfig reads the environment and, when CONFIG_FILE is set, applies the
// YAML file on top of it.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		TCPPort:        getEnvInt("TCP_PORT", 31272),
		MetricsPort:    getEnvInt("METRICS_PORT", 9000),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogDevelopment: getEnvBool("LOG_DEVELOPMENT", false),
		ServerID:       getEnv("SERVER_ID", "tk10x"),

		Mongo:    NewMongoConfig(),
		RedisURL: getEnv("REDIS_URL", ""),

		MinSpeedKPH:           getEnvFloat("MINIMUM_SPEED_KPH", 4.0),
		EstimateOdometer:      getEnvBool("ESTIMATE_ODOMETER", true),
		SimulateGeozones:      getEnvBool("SIMEVENT_GEOZONES", false),
		SimulateDigitalInputs: getEnvInt64("SIMEVENT_DIGITAL_INPUTS", 0xFF),
		LocationInMotion:      getEnvBool("XLATE_LOCATION_INMOTION", true),
		MinimumMovedMeters:    getEnvFloat("MINIMUM_MOVED_METERS", 0),

		PacketLenEndOfStream: getEnvBool("PACKET_LEN_END_OF_STREAM", false),
		LineTerminators:      parseTerminators(getEnv("LINE_TERMINATORS", defaultLineTerminators)),
		IdleTimeout:          getEnvDuration("IDLE_TIMEOUT", 10*time.Minute),
		MaxPacketLength:      getEnvInt("MAX_PACKET_LENGTH", 1024),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "tk10x-events"),

		MQTTBrokerURL: getEnv("MQTT_BROKER_URL", ""),
		MQTTClientID:  getEnv("MQTT_CLIENT_ID", "tk10x-gateway"),
		MQTTTopic:     getEnv("MQTT_TOPIC", "tk10x/events"),

		InfluxURL:    getEnv("INFLUX_URL", ""),
		InfluxToken:  getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:    getEnv("INFLUX_ORG", ""),
		InfluxBucket: getEnv("INFLUX_BUCKET", ""),

		ForwardQueueSize: getEnvInt("FORWARD_QUEUE_SIZE", 1000),

		EventCodes: map[string]int{},
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.SimulateDigitalInputs &= inputInterestMask
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile applies the YAML file at path to cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}
	return c.apply(data)
}

func (c *Config) apply(data []byte) error {
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return errors.Wrap(err, "parse config file")
	}

	setInt(&c.TCPPort, f.TCPPort)
	setInt(&c.MetricsPort, f.MetricsPort)
	setInt(&c.MaxPacketLength, f.MaxPacketLength)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.ServerID, f.ServerID)
	setFloat(&c.MinSpeedKPH, f.MinSpeedKPH)
	setFloat(&c.MinimumMovedMeters, f.MinimumMovedMeters)
	setBool(&c.EstimateOdometer, f.EstimateOdometer)
	setBool(&c.SimulateGeozones, f.SimulateGeozones)
	setBool(&c.LocationInMotion, f.LocationInMotion)
	setBool(&c.PacketLenEndOfStream, f.PacketLenEndOfStream)
	if f.SimulateDigitalInputs != nil {
		c.SimulateDigitalInputs = *f.SimulateDigitalInputs & inputInterestMask
	}
	if f.LineTerminators != nil {
		c.LineTerminators = parseTerminators(*f.LineTerminators)
	}
	if f.IdleTimeout != nil {
		c.IdleTimeout = *f.IdleTimeout
	}

	if c.EventCodes == nil {
		c.EventCodes = map[string]int{}
	}
	for code, status := range f.EventCodes {
		c.EventCodes[strings.TrimSpace(code)] = status
	}
	c.Geozones = append(c.Geozones, f.Geozones...)
	c.Devices = append(c.Devices, f.Devices...)
	return nil
}

// Validate rejects values the gateway cannot run with.
func (c *Config) Validate() error {
	if c.TCPPort <= 0 || c.TCPPort > 65535 {
		return errors.Errorf("invalid TCP_PORT %d", c.TCPPort)
	}
	if c.MaxPacketLength < 32 {
		return errors.Errorf("MAX_PACKET_LENGTH %d is below the largest fixed frame", c.MaxPacketLength)
	}
	if len(c.LineTerminators) == 0 {
		return errors.New("LINE_TERMINATORS must name at least one byte")
	}
	if c.ForwardQueueSize <= 0 {
		return errors.Errorf("invalid FORWARD_QUEUE_SIZE %d", c.ForwardQueueSize)
	}
	for _, z := range c.Geozones {
		if z == nil || z.ID == "" || z.RadiusM <= 0 {
			return errors.New("geozones need an id and a positive radius_m")
		}
	}
	for _, d := range c.Devices {
		if d.AccountID == "" || d.DeviceID == "" || d.UniqueID == "" {
			return errors.Errorf("device %q needs account_id, device_id and unique_id", d.UniqueID)
		}
	}
	return nil
}

// SeedDevices converts the configured device entries to registry records.
func (c *Config) SeedDevices() []*model.Device {
	out := make([]*model.Device, 0, len(c.Devices))
	for _, s := range c.Devices {
		d := model.NewDevice(s.AccountID, s.DeviceID, s.UniqueID)
		d.Description = s.Description
		d.AllowedIPs = s.AllowedIPs
		d.OdometerOffsetKM = s.OdometerOffsetKM
		out = append(out, d)
	}
	return out
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.TrimSpace(value)
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

// getEnvInt64 accepts decimal or 0x-prefixed values.
func getEnvInt64(key string, defaultValue int64) int64 {
	if v, err := strconv.ParseInt(getEnv(key, ""), 0, 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseTerminators reads a terminator set written with Go escapes, such as
// `\r\n;`. Values that are not valid escapes are taken byte for byte.
func parseTerminators(s string) []byte {
	if v, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return []byte(v)
	}
	return []byte(s)
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
