package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Client wraps a connected MongoDB source database
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect establishes a connection to the source MongoDB database
func Connect(ctx context.Context, uri, databaseName string) (*Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("connection uri cannot be empty")
	}
	if databaseName == "" {
		return nil, fmt.Errorf("database name cannot be empty")
	}

	clientOptions := options.Client().ApplyURI(uri)

	// In v2, Connect handles both creation and connection
	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Test the connection
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error pinging database: %v", err)
	}

	return &Client{
		client: client,
		db:     client.Database(databaseName),
	}, nil
}

// Database returns the underlying database handle
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Disconnect closes the connection
func (c *Client) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
