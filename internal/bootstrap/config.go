package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/shared"
	"github.com/eleven-am/camera-sentinel/internal/vision"
)

// Options are the command line switches.
type Options struct {
	Test             bool
	Quiet            bool
	Notify           bool
	TestAlarm        bool
	ExitAfter        time.Duration
	InstructionsFile string
}

type Config struct {
	UnifiHost      string
	UnifiPort      int
	UnifiUsername  string
	UnifiPassword  string
	UnifiVerifyTLS bool

	WebsocketStaleTimeout   time.Duration
	WebsocketInitialTimeout time.Duration
	WebsocketMaxFailures    int

	CameraFilter     string
	Timezone         string
	InstructionsFile string
	SampleInterval   time.Duration

	VisionProvider string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OllamaURL      string
	VisionModel    string
	VisionTimeout  time.Duration
	VisionMaxWidth int

	PushoverAPIToken string
	PushoverUserKey  string
	StatusNotify     bool

	ServerAddr     string
	RateLimitRPS   float64
	RateLimitBurst int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	FrameTTL      time.Duration

	NATSURL           string
	NATSSubjectPrefix string

	LogLevel string
	LogDir   string
}

// LoadConfig reads the environment. Malformed durations are reported as
// configuration errors.
func LoadConfig() (*Config, error) {
	var errs []error
	duration := func(key string, def time.Duration) time.Duration {
		d, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := &Config{
		UnifiHost:      getEnv("UNIFI_HOST", "192.168.1.1"),
		UnifiPort:      getEnvInt("UNIFI_PORT", 443),
		UnifiUsername:  getEnv("UNIFI_USERNAME", ""),
		UnifiPassword:  getEnv("UNIFI_PASSWORD", ""),
		UnifiVerifyTLS: getEnvBool("UNIFI_VERIFY_TLS", false),

		WebsocketStaleTimeout:   duration("WEBSOCKET_STALE_SECONDS", 300*time.Second),
		WebsocketInitialTimeout: duration("WEBSOCKET_INITIAL_TIMEOUT", 60*time.Second),
		WebsocketMaxFailures:    getEnvInt("WEBSOCKET_MAX_FAILURES", 3),

		CameraFilter:     getEnv("CAMERA_FILTER", ""),
		Timezone:         getEnv("TIMEZONE", ""),
		InstructionsFile: getEnv("INSTRUCTIONS_FILE", "instructions.txt"),
		SampleInterval:   duration("SAMPLE_INTERVAL", 10*time.Second),

		VisionProvider: strings.ToLower(getEnv("VISION_PROVIDER", vision.ProviderOpenAI)),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		OllamaURL:      getEnv("OLLAMA_URL", ""),
		VisionModel:    getEnv("VISION_MODEL", ""),
		VisionTimeout:  duration("VISION_TIMEOUT", 60*time.Second),
		VisionMaxWidth: getEnvInt("VISION_MAX_WIDTH", 0),

		PushoverAPIToken: getEnv("PUSHOVER_API_TOKEN", ""),
		PushoverUserKey:  getEnv("PUSHOVER_USER_KEY", ""),
		StatusNotify:     getEnvBool("STATUS_NOTIFY", true),

		ServerAddr:     lookupEnv("SERVER_ADDR", ":8080"),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		FrameTTL:      duration("FRAME_TTL", 60*time.Second),

		NATSURL:           getEnv("NATS_URL", ""),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "sentinel.events"),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogDir:   getEnv("LOG_DIR", "log"),
	}

	return cfg, errors.Join(errs...)
}

// Validate checks the settings the selected mode depends on.
func (c *Config) Validate(opts Options) error {
	if !opts.TestAlarm {
		if c.UnifiUsername == "" || c.UnifiPassword == "" {
			return shared.NewConfigurationError("UNIFI_USERNAME", "camera credentials are required")
		}
		if c.UnifiPort <= 0 || c.UnifiPort > 65535 {
			return shared.NewConfigurationError("UNIFI_PORT", fmt.Sprintf("invalid port %d", c.UnifiPort))
		}

		switch c.VisionProvider {
		case vision.ProviderOpenAI:
			if c.OpenAIAPIKey == "" {
				return shared.NewConfigurationError("OPENAI_API_KEY", "required for the openai provider")
			}
		case vision.ProviderOllama:
		default:
			return shared.NewConfigurationError("VISION_PROVIDER", fmt.Sprintf("unknown provider %q", c.VisionProvider))
		}

		if c.SampleInterval <= 0 {
			return shared.NewConfigurationError("SAMPLE_INTERVAL", "must be positive")
		}
	}

	if (opts.Notify || opts.TestAlarm) && !c.HasPushover() {
		return shared.NewConfigurationError("PUSHOVER_API_TOKEN", "pushover credentials are required to send notifications")
	}

	if opts.ExitAfter < 0 {
		return shared.NewConfigurationError("exit-after", "must not be negative")
	}

	return nil
}

func (c *Config) HasPushover() bool {
	return c.PushoverAPIToken != "" && c.PushoverUserKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnv is getEnv for settings where an explicitly empty value means off.
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") and bare seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, shared.NewConfigurationError(key, fmt.Sprintf("invalid duration %q", value))
	}
	return d, nil
}
