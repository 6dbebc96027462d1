package cart

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoOptions configures the cart database. Zero pool sizes keep the
// driver defaults.
type MongoOptions struct {
	URI         string
	Database    string
	AppName     string
	MaxPoolSize uint64
	MinPoolSize uint64
}

// ConnectMongoDB opens the cart database and checks the primary is reachable.
// The client is closed again when the check fails.
func ConnectMongoDB(ctx context.Context, opts MongoOptions) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)
	if opts.AppName != "" {
		clientOpts.SetAppName(opts.AppName)
	}
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(opts.MinPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongodb %s: %w", opts.Database, err)
	}
	return client.Database(opts.Database), nil
}
