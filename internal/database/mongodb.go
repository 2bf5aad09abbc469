package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB wraps the MongoDB client and database
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// Collection names
const (
	CollectionThreads        = "threads"
	CollectionSessionThreads = "session_threads"
	CollectionUserProfiles   = "user_profiles"
	CollectionMemoryEvents   = "memory_events"
	CollectionCheckpoints    = "checkpoints"
	CollectionTaskResults    = "task_results"
	CollectionDocuments      = "documents"
)

// NewMongoDB creates a new MongoDB connection with connection pooling
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)
	if dbName == "" {
		dbName = "careerpilot"
	}

	db := &MongoDB{
		client:   client,
		database: client.Database(dbName),
		dbName:   dbName,
	}

	log.Printf("✅ Connected to MongoDB database: %s", dbName)

	return db, nil
}

// extractDBName extracts the database name from MongoDB URI
func extractDBName(uri string) string {
	// mongodb://localhost:27017/careerpilot?authSource=admin -> careerpilot
	lastSlash := -1
	questionMark := -1

	for i, c := range uri {
		if c == '/' {
			lastSlash = i
		}
		if c == '?' && questionMark == -1 {
			questionMark = i
		}
	}

	if lastSlash != -1 {
		start := lastSlash + 1
		end := len(uri)
		if questionMark != -1 && questionMark > lastSlash {
			end = questionMark
		}
		if start < end {
			return uri[start:end]
		}
	}

	return "careerpilot"
}

// Initialize creates indexes for all collections
func (m *MongoDB) Initialize(ctx context.Context) error {
	log.Println("📦 Initializing MongoDB indexes...")

	// Threads: lookup by threadId, physical TTL sweep on expiresAt.
	// Reads still check logical expiry; the TTL monitor lags by design.
	if err := m.createIndexes(ctx, CollectionThreads, []mongo.IndexModel{
		{Keys: bson.D{{Key: "threadId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	}); err != nil {
		return fmt.Errorf("failed to create threads indexes: %w", err)
	}

	// Session to thread mapping, same TTL discipline as threads
	if err := m.createIndexes(ctx, CollectionSessionThreads, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sessionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	}); err != nil {
		return fmt.Errorf("failed to create session_threads indexes: %w", err)
	}

	// User profiles: one document per user
	if err := m.createIndexes(ctx, CollectionUserProfiles, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("failed to create user_profiles indexes: %w", err)
	}

	// Memory events: importance-ranked reads and retention sweeps
	if err := m.createIndexes(ctx, CollectionMemoryEvents, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "importanceScore", Value: -1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}, {Key: "importanceScore", Value: 1}, {Key: "accessCount", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create memory_events indexes: %w", err)
	}

	// Checkpoints: latest-by-createdAt lookups and age sweeps
	if err := m.createIndexes(ctx, CollectionCheckpoints, []mongo.IndexModel{
		{Keys: bson.D{{Key: "threadId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create checkpoints indexes: %w", err)
	}

	// Task results: audit queries by thread
	if err := m.createIndexes(ctx, CollectionTaskResults, []mongo.IndexModel{
		{Keys: bson.D{{Key: "threadId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("failed to create task_results indexes: %w", err)
	}

	// Documents: one extracted text per (user, document)
	if err := m.createIndexes(ctx, CollectionDocuments, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "documentId", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("failed to create documents indexes: %w", err)
	}

	log.Println("✅ MongoDB indexes initialized")
	return nil
}

// createIndexes creates indexes for a collection
func (m *MongoDB) createIndexes(ctx context.Context, collectionName string, indexes []mongo.IndexModel) error {
	_, err := m.database.Collection(collectionName).Indexes().CreateMany(ctx, indexes)
	return err
}

// Collection returns a handle to the named collection
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Client returns the underlying mongo client
func (m *MongoDB) Client() *mongo.Client {
	return m.client
}

// Close closes the MongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Ping verifies the connection is alive
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}
