package storage

import (
	"time"
)

// DefaultMongoDatabase is used when neither the connection string nor an
// option names a database.
const DefaultMongoDatabase = "sessionlog"

// MongoConfig describes how the repository connects to MongoDB.
type MongoConfig struct {
	URI                    string
	Database               string
	AppName                string
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	Clock                  func() time.Time
}

func newMongoConfig(uri string, opts ...Option) MongoConfig {
	cfg := MongoConfig{
		URI:                    uri,
		ConnectTimeout:         10 * time.Second,
		ServerSelectionTimeout: 10 * time.Second,
		Clock:                  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyMongo(&cfg)
		}
	}
	return cfg
}
