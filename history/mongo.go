package history

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"voiceguard/models"
)

const (
	DefaultMongoURI      = "mongodb://localhost:27017"
	DefaultMongoDatabase = "voiceguard"
	analysesCollection   = "analyses"
)

type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		uri = DefaultMongoURI
	}
	if database == "" {
		database = DefaultMongoDatabase
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(analysesCollection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error creating analyses index: %w", err)
	}

	return &MongoStore{client: client, collection: coll}, nil
}

func (s *MongoStore) SaveAnalysis(ctx context.Context, a *models.Analysis) error {
	prepare(a)
	if _, err := s.collection.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("error storing analysis: %w", err)
	}
	return nil
}

func (s *MongoStore) ListAnalyses(ctx context.Context, limit int) ([]models.Analysis, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(normLimit(limit)))

	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying analyses: %w", err)
	}
	defer cursor.Close(ctx)

	analyses := []models.Analysis{}
	if err := cursor.All(ctx, &analyses); err != nil {
		return nil, fmt.Errorf("error decoding analyses: %w", err)
	}
	return analyses, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
