package storage

import (
	"strings"
	"time"
)

// Option configures a repository. Each option only touches the backends it
// applies to.
type Option interface {
	applyJSON(*JSONRepository)
	applyPostgres(*PostgresConfig)
	applyMongo(*MongoConfig)
}

type optionAdapter struct {
	json  func(*JSONRepository)
	pg    func(*PostgresConfig)
	mongo func(*MongoConfig)
}

func (o optionAdapter) applyJSON(store *JSONRepository) {
	if o.json != nil && store != nil {
		o.json(store)
	}
}

func (o optionAdapter) applyPostgres(cfg *PostgresConfig) {
	if o.pg != nil && cfg != nil {
		o.pg(cfg)
	}
}

func (o optionAdapter) applyMongo(cfg *MongoConfig) {
	if o.mongo != nil && cfg != nil {
		o.mongo(cfg)
	}
}

func composeOption(json func(*JSONRepository), pg func(*PostgresConfig), mongo func(*MongoConfig)) Option {
	return optionAdapter{json: json, pg: pg, mongo: mongo}
}

func postgresOnlyOption(pg func(*PostgresConfig)) Option {
	return optionAdapter{pg: pg}
}

func mongoOnlyOption(mongo func(*MongoConfig)) Option {
	return optionAdapter{mongo: mongo}
}

// WithClock overrides the time source used when generating ObjectIDs.
func WithClock(clock func() time.Time) Option {
	if clock == nil {
		return optionAdapter{}
	}
	return composeOption(
		func(s *JSONRepository) {
			s.clock = clock
		},
		func(cfg *PostgresConfig) {
			cfg.Clock = clock
		},
		func(cfg *MongoConfig) {
			cfg.Clock = clock
		},
	)
}

// WithMongoDatabase selects the database holding the collections. Without it
// the database named in the connection string is used, falling back to
// DefaultMongoDatabase.
func WithMongoDatabase(name string) Option {
	return mongoOnlyOption(func(cfg *MongoConfig) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.Database = trimmed
		}
	})
}

func WithMongoTimeouts(connect, serverSelection time.Duration) Option {
	return mongoOnlyOption(func(cfg *MongoConfig) {
		if connect > 0 {
			cfg.ConnectTimeout = connect
		}
		if serverSelection > 0 {
			cfg.ServerSelectionTimeout = serverSelection
		}
	})
}

func WithPostgresPoolLimits(maxConns, minConns int32) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxConns > 0 {
			cfg.MaxConnections = maxConns
		}
		if minConns >= 0 {
			cfg.MinConnections = minConns
		}
	})
}

// WithPostgresAcquireTimeout bounds how long an operation may wait for a pooled
// connection. The same deadline covers the statement run on that connection.
func WithPostgresAcquireTimeout(timeout time.Duration) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if timeout > 0 {
			cfg.AcquireTimeout = timeout
		}
	})
}

func WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval time.Duration) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxLifetime > 0 {
			cfg.MaxConnLifetime = maxLifetime
		}
		if maxIdle > 0 {
			cfg.MaxConnIdleTime = maxIdle
		}
		if healthInterval > 0 {
			cfg.HealthCheckInterval = healthInterval
		}
	})
}

// WithApplicationName tags database connections so operators can identify the
// service in server-side views.
func WithApplicationName(name string) Option {
	trimmed := strings.TrimSpace(name)
	return composeOption(
		nil,
		func(cfg *PostgresConfig) {
			if trimmed != "" {
				cfg.ApplicationName = trimmed
			}
		},
		func(cfg *MongoConfig) {
			if trimmed != "" {
				cfg.AppName = trimmed
			}
		},
	)
}
