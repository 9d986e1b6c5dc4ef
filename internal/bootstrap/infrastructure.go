package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/camera-sentinel/internal/events"
	"github.com/eleven-am/camera-sentinel/internal/gate"
	"github.com/eleven-am/camera-sentinel/internal/monitor"
	"github.com/eleven-am/camera-sentinel/internal/notify"
	"github.com/eleven-am/camera-sentinel/internal/protect"
	"github.com/eleven-am/camera-sentinel/internal/shared"
	"github.com/eleven-am/camera-sentinel/internal/vision"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// ProvideRedisClient returns nil when REDIS_ADDR is empty.
func ProvideRedisClient(lc fx.Lifecycle, cfg *Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.StopHook(client.Close))
	return client
}

func ProvideFrameStore(client *redis.Client, cfg *Config) *vision.Store {
	if client == nil {
		return nil
	}
	return vision.NewStore(client, cfg.FrameTTL)
}

func ProvideProtectClient(cfg *Config, logger *slog.Logger) *protect.Client {
	return protect.NewClient(protect.Config{
		Host:           cfg.UnifiHost,
		Port:           cfg.UnifiPort,
		Username:       cfg.UnifiUsername,
		Password:       cfg.UnifiPassword,
		VerifyTLS:      cfg.UnifiVerifyTLS,
		StaleTimeout:   cfg.WebsocketStaleTimeout,
		InitialTimeout: cfg.WebsocketInitialTimeout,
		Backoff: shared.BackoffConfig{
			MaxAttempts: cfg.WebsocketMaxFailures,
		},
	}, logger)
}

func ProvideVisionClient(cfg *Config, logger *slog.Logger) *vision.Client {
	baseURL := cfg.OpenAIBaseURL
	if cfg.VisionProvider == vision.ProviderOllama {
		baseURL = cfg.OllamaURL
	}
	return vision.NewClient(vision.Config{
		Provider: cfg.VisionProvider,
		BaseURL:  baseURL,
		APIKey:   cfg.OpenAIAPIKey,
		Model:    cfg.VisionModel,
		Timeout:  cfg.VisionTimeout,
		MaxWidth: cfg.VisionMaxWidth,
	}, logger)
}

// ProvideNotifier delivers through Pushover when credentials are set and
// only logs otherwise.
func ProvideNotifier(cfg *Config, logger *slog.Logger) monitor.Notifier {
	if !cfg.HasPushover() {
		return notify.NewLogSender(logger)
	}
	return notify.NewPushover(notify.Config{
		APIToken: cfg.PushoverAPIToken,
		UserKey:  cfg.PushoverUserKey,
	})
}

// ProvideEventPublisher returns nil when NATS_URL is empty or the server
// cannot be reached at startup. Event publication is optional.
func ProvideEventPublisher(lc fx.Lifecycle, cfg *Config, logger *slog.Logger) *events.Publisher {
	if cfg.NATSURL == "" {
		return nil
	}
	pub, err := events.Connect(events.Config{
		URL:           cfg.NATSURL,
		SubjectPrefix: cfg.NATSSubjectPrefix,
	}, logger)
	if err != nil {
		logger.Warn("event publication disabled", "url", cfg.NATSURL, "error", err)
		return nil
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	return pub
}

var InfrastructureModule = fx.Options(
	fx.Provide(
		ProvideRedisClient,
		ProvideFrameStore,
		ProvideProtectClient,
		ProvideVisionClient,
		ProvideNotifier,
		ProvideEventPublisher,
		gate.New,
	),
)
