package config

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoConfig struct {
	URI      string
	Database string
}

// NewMongoConfig reads the storage settings. An empty URI selects the
// in-memory repositories.
func NewMongoConfig() MongoConfig {
	return MongoConfig{
		URI:      getEnv("MONGODB_URI", ""),
		Database: getEnv("MONGODB_DATABASE", "gts"),
	}
}

// Enabled reports whether a Mongo URI was configured.
func (c MongoConfig) Enabled() bool {
	return c.URI != ""
}

func ConnectMongoDB(ctx context.Context, cfg MongoConfig) (*mongo.Database, error) {
	if cfg.URI == "" {
		return nil, errors.New("MongoDB URI not provided")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "failed to ping MongoDB")
	}
	return client.Database(cfg.Database), nil
}
