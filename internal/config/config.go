// Package config loads gateway settings from an optional .env file, OOK_*
// environment variables, and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sweeney/ook-gateway/internal/logic"
)

// Config holds every setting of the gateway.
type Config struct {
	// MQTT
	Broker   string
	ClientID string // empty: generated at startup
	Username string
	Password string
	Protocol int
	QoS      int

	// Receiver
	Chip    string
	Line    int
	Channel int // 1..4, 0 accepts any

	// Time
	NTPServer  string // empty disables time sync
	NTPTimeout time.Duration

	// Loop
	ReceiveTimeout     time.Duration
	MinPublishInterval time.Duration
	StableCount        int
	LivenessCeiling    time.Duration
	ResyncInterval     time.Duration
	ResyncRetry        time.Duration
	PublishTimeout     time.Duration
	WatchdogTimeout    time.Duration
	LinkTimeout        time.Duration

	// Process
	HTTPAddr     string // empty disables the status server
	LogLevel     string
	PrintReading bool
}

// Load reads configuration. args excludes the program name. It returns
// flag.ErrHelp when -h is given.
func Load(args []string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	c := &Config{}
	fs := flag.NewFlagSet("ook-gateway", flag.ContinueOnError)

	fs.StringVar(&c.Broker, "broker", getEnv("OOK_BROKER", "tcp://localhost:1883"), "MQTT broker address")
	fs.StringVar(&c.ClientID, "client-id", getEnv("OOK_CLIENT_ID", ""), "MQTT client id (empty generates one)")
	fs.StringVar(&c.Username, "username", getEnv("OOK_MQTT_USERNAME", ""), "MQTT username")
	fs.StringVar(&c.Password, "password", getEnv("OOK_MQTT_PASSWORD", ""), "MQTT password")
	fs.IntVar(&c.Protocol, "protocol", getEnvInt("OOK_MQTT_PROTOCOL", 5), "MQTT protocol version (3 or 5)")
	fs.IntVar(&c.QoS, "qos", getEnvInt("OOK_MQTT_QOS", 0), "QoS for readings")

	fs.StringVar(&c.Chip, "chip", getEnv("OOK_GPIO_CHIP", "gpiochip0"), "GPIO chip of the receiver data line")
	fs.IntVar(&c.Line, "line", getEnvInt("OOK_GPIO_LINE", 21), "GPIO line offset of the receiver data line")
	fs.IntVar(&c.Channel, "channel", getEnvInt("OOK_CHANNEL", 1), "sensor channel to accept (1-4, 0 for any)")

	fs.StringVar(&c.NTPServer, "ntp", getEnv("OOK_NTP_SERVER", "pool.ntp.org"), "NTP server (empty disables time sync)")
	fs.DurationVar(&c.NTPTimeout, "ntp-timeout", getEnvDuration("OOK_NTP_TIMEOUT", 5*time.Second), "NTP query timeout")

	fs.DurationVar(&c.ReceiveTimeout, "receive-timeout", getEnvDuration("OOK_RECEIVE_TIMEOUT", time.Second), "Receive wait per loop iteration")
	fs.DurationVar(&c.MinPublishInterval, "min-interval", getEnvDuration("OOK_MIN_INTERVAL", 5*time.Second), "Minimum time between publishes")
	fs.IntVar(&c.StableCount, "stable-count", getEnvInt("OOK_STABLE_COUNT", 3), "Identical readings required before publishing")
	fs.DurationVar(&c.LivenessCeiling, "liveness", getEnvDuration("OOK_LIVENESS", 360*time.Second), "Exit if nothing was published for this long (0 disables)")
	fs.DurationVar(&c.ResyncInterval, "resync", getEnvDuration("OOK_RESYNC_INTERVAL", 10000*time.Second), "Time between clock resyncs")
	fs.DurationVar(&c.ResyncRetry, "resync-retry", getEnvDuration("OOK_RESYNC_RETRY", time.Minute), "Time between resync attempts after a failure")
	fs.DurationVar(&c.PublishTimeout, "publish-timeout", getEnvDuration("OOK_PUBLISH_TIMEOUT", 10*time.Second), "Timeout for one publish")
	fs.DurationVar(&c.WatchdogTimeout, "watchdog", getEnvDuration("OOK_WATCHDOG", 30*time.Second), "In-process watchdog timeout")
	fs.DurationVar(&c.LinkTimeout, "link-timeout", getEnvDuration("OOK_LINK_TIMEOUT", 20*time.Second), "Startup wait for the network")

	fs.StringVar(&c.HTTPAddr, "http", getEnv("OOK_HTTP_ADDR", ":8080"), "HTTP status address (empty to disable)")
	fs.StringVar(&c.LogLevel, "log-level", getEnv("OOK_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	fs.BoolVar(&c.PrintReading, "print-reading", false, "Print the next decoded reading and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Broker) == "" {
		errs = append(errs, errors.New("broker is required"))
	}
	if c.Protocol != 3 && c.Protocol != 5 {
		errs = append(errs, fmt.Errorf("protocol must be 3 or 5, got %d", c.Protocol))
	}
	if c.QoS < 0 || c.QoS > 2 {
		errs = append(errs, fmt.Errorf("qos must be 0-2, got %d", c.QoS))
	}
	if c.Channel < 0 || c.Channel > 4 {
		errs = append(errs, fmt.Errorf("channel must be 0-4, got %d", c.Channel))
	}
	if c.Line < 0 {
		errs = append(errs, fmt.Errorf("line must not be negative, got %d", c.Line))
	}
	if c.StableCount < 1 {
		errs = append(errs, fmt.Errorf("stable-count must be at least 1, got %d", c.StableCount))
	}
	for name, d := range map[string]time.Duration{
		"receive-timeout": c.ReceiveTimeout,
		"publish-timeout": c.PublishTimeout,
		"ntp-timeout":     c.NTPTimeout,
		"watchdog":        c.WatchdogTimeout,
		"link-timeout":    c.LinkTimeout,
		"resync-retry":    c.ResyncRetry,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	if c.MinPublishInterval < 0 || c.ResyncInterval < 0 || c.LivenessCeiling < 0 {
		errs = append(errs, errors.New("intervals must not be negative"))
	}
	if c.LivenessCeiling > 0 && c.LivenessCeiling <= c.MinPublishInterval {
		errs = append(errs, fmt.Errorf("liveness %v must exceed min-interval %v", c.LivenessCeiling, c.MinPublishInterval))
	}
	// One iteration can wait for a receive, a publish and a resync.
	if worst := c.ReceiveTimeout + c.PublishTimeout + c.NTPTimeout; c.WatchdogTimeout <= worst {
		errs = append(errs, fmt.Errorf("watchdog %v must exceed the longest iteration %v", c.WatchdogTimeout, worst))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

// Arbiter returns the publish policy.
func (c *Config) Arbiter() logic.Config {
	return logic.Config{
		Threshold:      c.StableCount,
		MinInterval:    c.MinPublishInterval,
		Ceiling:        c.LivenessCeiling,
		ResyncInterval: c.ResyncInterval,
		ResyncRetry:    c.ResyncRetry,
	}
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

func getEnv(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return intValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return d
}
