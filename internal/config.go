package internal

import (
	"fmt"
	"io/fs"
	"pet-chat/errors"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	StoreBadger     = "badger"
	StoreMongo      = "mongo"
	PresenceMemory  = "memory"
	PresenceRedis   = "redis"
	defaultEnvFiles = ".env"
)

type Config struct {
	Port     int    `env:"PORT,default=5000" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	JWTSecret      string `env:"JWT_SECRET" validate:"required"`
	WSRequireToken bool   `env:"WS_REQUIRE_TOKEN,default=false"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`

	StoreBackend  string        `env:"STORE_BACKEND,default=badger" validate:"oneof=badger mongo"`
	BadgerPath    string        `env:"BADGER_PATH,default=./data/chat" validate:"required_if=StoreBackend badger"`
	MongoURI      string        `env:"MONGO_URI" validate:"required_if=StoreBackend mongo"`
	MongoDatabase string        `env:"MONGO_DATABASE,default=pet_marketplace" validate:"required_if=StoreBackend mongo"`
	MongoTimeout  time.Duration `env:"MONGO_TIMEOUT,default=5s" validate:"gt=0"`

	PresenceBackend string `env:"PRESENCE_BACKEND,default=memory" validate:"oneof=memory redis"`
	RedisAddr       string `env:"REDIS_ADDR" validate:"required_if=PresenceBackend redis"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB,default=0" validate:"min=0"`
	RedisPrefix     string `env:"REDIS_PREFIX,default=chat" validate:"required"`

	// PresenceTTL must outlive the websocket ping interval, entries are refreshed on pong.
	PresenceTTL time.Duration `env:"PRESENCE_TTL,default=2m" validate:"gt=0"`

	WorkerShards    int           `env:"WORKER_SHARDS,default=8" validate:"min=1"`
	InboundBuffer   int           `env:"INBOUND_BUFFER,default=256" validate:"min=1"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`

	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s" validate:"gt=0"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=16" validate:"min=0"`

	ModerationEnabled bool   `env:"MODERATION_ENABLED,default=false"`
	CensorCharacter   string `env:"CENSOR_CHARACTER,default=*"`
}

// LoadConfig reads the optional .env files then the environment, which wins.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{defaultEnvFiles}
	}
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("env file: %w", err)
	}

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	if _, err := CharacterRune(config.CensorCharacter); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"%w: CENSOR_CHARACTER must be a single character, got %q",
			errors.ErrValidation, str,
		)
	}
	return r[0], nil
}
