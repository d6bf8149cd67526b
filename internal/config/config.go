// Package config resolves runtime settings for the sessionlog binaries from
// command-line flags, SESSIONLOG_* environment variables, an optional config
// file and a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sessionlog/internal/storage"
)

const (
	// EnvPrefix is prepended to every derived environment variable name.
	EnvPrefix = "SESSIONLOG"

	defaultPort            = "5050"
	defaultEnvFile         = ".env"
	defaultShutdownTimeout = 10 * time.Second
	defaultHealthInterval  = 30 * time.Second
)

var errNoDatastore = errors.New("no datastore configured: set --mongo-uri, --postgres-dsn or --data")

// Config is the fully resolved server configuration.
type Config struct {
	Addr            string
	LogLevel        string
	LogFormat       string
	Storage         StorageConfig
	TLS             TLSConfig
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	ShutdownTimeout time.Duration
	HealthInterval  time.Duration
}

// StorageConfig selects the document backend.
type StorageConfig struct {
	Driver                 string
	DataPath               string
	MongoURI               string
	MongoDatabase          string
	MongoConnectTimeout    time.Duration
	PostgresDSN            string
	PostgresMaxConns       int32
	PostgresMinConns       int32
	PostgresAcquireTimeout time.Duration
	PostgresMaxConnLife    time.Duration
	PostgresMaxConnIdle    time.Duration
	PostgresHealthInterval time.Duration
	ApplicationName        string
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// RateLimitConfig carries the throttling settings. Zero values disable the
// corresponding limiter.
type RateLimitConfig struct {
	GlobalRPS     float64
	GlobalBurst   int
	ClientLimit   int
	ClientWindow  time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
	// TrustProxy keys clients by X-Forwarded-For / X-Real-IP.
	TrustProxy bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load parses args (without the program name) and merges them with the
// environment. Flags win over environment variables, which win over the
// config file.
func Load(args []string) (Config, error) {
	flags := NewFlagSet("sessionlog")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}
	return FromFlags(flags)
}

// FromFlags resolves the configuration from a flag set created by NewFlagSet
// that has already been parsed. Tools register their own flags on the same
// set before parsing.
func FromFlags(flags *pflag.FlagSet) (Config, error) {
	envFile, _ := flags.GetString("env-file")
	if err := loadDotEnv(envFile, flags.Changed("env-file")); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := bindFlags(v, flags); err != nil {
		return Config{}, err
	}
	if err := bindAliases(v); err != nil {
		return Config{}, err
	}

	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		Addr:      resolveAddr(v.GetString("addr"), v.GetString("port")),
		LogLevel:  strings.TrimSpace(v.GetString("log.level")),
		LogFormat: strings.TrimSpace(v.GetString("log.format")),
		Storage: StorageConfig{
			Driver:                 strings.ToLower(strings.TrimSpace(v.GetString("storage.driver"))),
			DataPath:               strings.TrimSpace(v.GetString("storage.data_path")),
			MongoURI:               strings.TrimSpace(v.GetString("storage.mongo_uri")),
			MongoDatabase:          strings.TrimSpace(v.GetString("storage.mongo_database")),
			MongoConnectTimeout:    v.GetDuration("storage.mongo_connect_timeout"),
			PostgresDSN:            strings.TrimSpace(v.GetString("storage.postgres_dsn")),
			PostgresMaxConns:       v.GetInt32("storage.postgres_max_conns"),
			PostgresMinConns:       v.GetInt32("storage.postgres_min_conns"),
			PostgresAcquireTimeout: v.GetDuration("storage.postgres_acquire_timeout"),
			PostgresMaxConnLife:    v.GetDuration("storage.postgres_max_conn_lifetime"),
			PostgresMaxConnIdle:    v.GetDuration("storage.postgres_max_conn_idle"),
			PostgresHealthInterval: v.GetDuration("storage.postgres_health_interval"),
			ApplicationName:        strings.TrimSpace(v.GetString("storage.app_name")),
		},
		TLS: TLSConfig{
			CertFile: strings.TrimSpace(v.GetString("tls.cert")),
			KeyFile:  strings.TrimSpace(v.GetString("tls.key")),
		},
		RateLimit: RateLimitConfig{
			GlobalRPS:     v.GetFloat64("rate.global_rps"),
			GlobalBurst:   v.GetInt("rate.global_burst"),
			ClientLimit:   v.GetInt("rate.client_limit"),
			ClientWindow:  v.GetDuration("rate.client_window"),
			RedisAddr:     strings.TrimSpace(v.GetString("rate.redis_addr")),
			RedisPassword: v.GetString("rate.redis_password"),
			RedisTimeout:  v.GetDuration("rate.redis_timeout"),
			TrustProxy:    v.GetBool("rate.trust_proxy"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetStringSlice("cors.allowed_origins")),
		},
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		HealthInterval:  v.GetDuration("health_interval"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewFlagSet returns a flag set carrying every configuration flag.
func NewFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.String("config", "", "path to an optional YAML, TOML or JSON config file")
	flags.String("env-file", defaultEnvFile, "path to a .env file loaded before reading the environment")
	flags.String("addr", "", "HTTP listen address (defaults to :$PORT or :"+defaultPort+")")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log encoding (json or console)")
	flags.String("storage-driver", "", "datastore driver (mongo, postgres or json)")
	flags.String("data", "", "path to the JSON datastore file")
	flags.String("mongo-uri", "", "MongoDB connection string")
	flags.String("mongo-database", "", "MongoDB database name (defaults to the URI path or "+storage.DefaultMongoDatabase+")")
	flags.Duration("mongo-connect-timeout", 0, "timeout for establishing the MongoDB connection")
	flags.String("postgres-dsn", "", "Postgres connection string")
	flags.Int32("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	flags.Int32("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	flags.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	flags.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	flags.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	flags.Duration("postgres-health-interval", 0, "interval between Postgres pool health checks")
	flags.String("app-name", "sessionlog", "application name reported to the datastore")
	flags.String("tls-cert", "", "path to TLS certificate file")
	flags.String("tls-key", "", "path to TLS private key file")
	flags.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	flags.Int("rate-global-burst", 0, "global rate limit burst allowance")
	flags.Int("rate-client-limit", 0, "maximum requests per window for a single client IP")
	flags.Duration("rate-client-window", time.Minute, "window for counting per-client requests")
	flags.String("rate-redis-addr", "", "Redis address for distributed per-client throttling")
	flags.String("rate-redis-password", "", "Redis password for distributed per-client throttling")
	flags.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	flags.Bool("rate-trust-proxy", false, "identify clients by X-Forwarded-For when behind a trusted proxy")
	flags.StringSlice("cors-allowed-origins", []string{"*"}, "comma separated origins allowed by CORS")
	flags.Duration("shutdown-timeout", defaultShutdownTimeout, "graceful shutdown timeout")
	flags.Duration("health-interval", defaultHealthInterval, "interval between background datastore pings")
	return flags
}

// flagKeys maps flag names onto their viper keys. The env variable for a key
// is EnvPrefix + "_" + the key upper-cased with dots replaced by underscores.
var flagKeys = map[string]string{
	"config":                     "config",
	"addr":                       "addr",
	"log-level":                  "log.level",
	"log-format":                 "log.format",
	"storage-driver":             "storage.driver",
	"data":                       "storage.data_path",
	"mongo-uri":                  "storage.mongo_uri",
	"mongo-database":             "storage.mongo_database",
	"mongo-connect-timeout":      "storage.mongo_connect_timeout",
	"postgres-dsn":               "storage.postgres_dsn",
	"postgres-max-conns":         "storage.postgres_max_conns",
	"postgres-min-conns":         "storage.postgres_min_conns",
	"postgres-acquire-timeout":   "storage.postgres_acquire_timeout",
	"postgres-max-conn-lifetime": "storage.postgres_max_conn_lifetime",
	"postgres-max-conn-idle":     "storage.postgres_max_conn_idle",
	"postgres-health-interval":   "storage.postgres_health_interval",
	"app-name":                   "storage.app_name",
	"tls-cert":                   "tls.cert",
	"tls-key":                    "tls.key",
	"rate-global-rps":            "rate.global_rps",
	"rate-global-burst":          "rate.global_burst",
	"rate-client-limit":          "rate.client_limit",
	"rate-client-window":         "rate.client_window",
	"rate-redis-addr":            "rate.redis_addr",
	"rate-redis-password":        "rate.redis_password",
	"rate-redis-timeout":         "rate.redis_timeout",
	"rate-trust-proxy":           "rate.trust_proxy",
	"cors-allowed-origins":       "cors.allowed_origins",
	"shutdown-timeout":           "shutdown_timeout",
	"health-interval":            "health_interval",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag %s not registered", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// bindAliases accepts the variable names used by common hosting platforms
// alongside the prefixed ones.
func bindAliases(v *viper.Viper) error {
	aliases := map[string][]string{
		"storage.mongo_uri":    {EnvPrefix + "_STORAGE_MONGO_URI", "MONGO_URI", "ATLAS_URI"},
		"storage.postgres_dsn": {EnvPrefix + "_STORAGE_POSTGRES_DSN", "DATABASE_URL"},
		"port":                 {"PORT"},
	}
	for key, names := range aliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func loadDotEnv(path string, explicit bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveAddr(addr, port string) string {
	if addr = strings.TrimSpace(addr); addr != "" {
		return addr
	}
	if port = strings.TrimSpace(port); port != "" {
		return ":" + port
	}
	return ":" + defaultPort
}

// splitList flattens comma separated entries, which is how list values
// arrive from the environment.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) validate() error {
	s := &c.Storage
	if s.Driver == "" {
		switch {
		case s.MongoURI != "":
			s.Driver = storage.DriverMongo
		case s.PostgresDSN != "":
			s.Driver = storage.DriverPostgres
		case s.DataPath != "":
			s.Driver = storage.DriverJSON
		default:
			return errNoDatastore
		}
	}
	switch s.Driver {
	case storage.DriverMongo:
		if s.MongoURI == "" {
			return errors.New("mongo storage driver requires --mongo-uri")
		}
	case storage.DriverPostgres:
		if s.PostgresDSN == "" {
			return errors.New("postgres storage driver requires --postgres-dsn")
		}
	case storage.DriverJSON:
		if s.DataPath == "" {
			return errors.New("json storage driver requires --data")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", s.Driver)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.New("both --tls-cert and --tls-key must be provided")
	}
	if c.RateLimit.GlobalRPS < 0 || c.RateLimit.GlobalBurst < 0 || c.RateLimit.ClientLimit < 0 {
		return errors.New("rate limits must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = defaultHealthInterval
	}
	return nil
}

// DriverConfig converts the storage settings into the options understood by
// storage.Open.
func (s StorageConfig) DriverConfig() storage.DriverConfig {
	var opts []storage.Option
	if s.ApplicationName != "" {
		opts = append(opts, storage.WithApplicationName(s.ApplicationName))
	}
	if s.MongoConnectTimeout > 0 {
		opts = append(opts, storage.WithMongoTimeouts(s.MongoConnectTimeout, s.MongoConnectTimeout))
	}
	if s.PostgresMaxConns > 0 || s.PostgresMinConns > 0 {
		opts = append(opts, storage.WithPostgresPoolLimits(s.PostgresMaxConns, s.PostgresMinConns))
	}
	if s.PostgresAcquireTimeout > 0 {
		opts = append(opts, storage.WithPostgresAcquireTimeout(s.PostgresAcquireTimeout))
	}
	if s.PostgresMaxConnLife > 0 || s.PostgresMaxConnIdle > 0 || s.PostgresHealthInterval > 0 {
		opts = append(opts, storage.WithPostgresPoolDurations(s.PostgresMaxConnLife, s.PostgresMaxConnIdle, s.PostgresHealthInterval))
	}
	return storage.DriverConfig{
		Driver:        s.Driver,
		DataPath:      s.DataPath,
		MongoURI:      s.MongoURI,
		MongoDatabase: s.MongoDatabase,
		PostgresDSN:   s.PostgresDSN,
		Options:       opts,
	}
}
