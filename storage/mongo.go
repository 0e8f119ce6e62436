package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"stays-service/models"
	"stays-service/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const staysCollection = "stays"

// MongoStore keeps listings in a MongoDB collection. Expiry is delegated to
// a TTL index on lastUpdated.
type MongoStore struct {
	client    *mongo.Client
	coll      *mongo.Collection
	logger    *utils.Logger
	retention time.Duration
	now       func() time.Time
}

// NewMongoStore connects, pings and ensures indexes
func NewMongoStore(ctx context.Context, uri, dbName string, retention time.Duration, logger *utils.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := &MongoStore{
		client:    client,
		coll:      client.Database(dbName).Collection(staysCollection),
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.Info("Connected to MongoDB database %q", dbName)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "source", Value: 1}, {Key: "identityKey", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("source_identityKey"),
		},
		{
			Keys:    bson.D{{Key: "lastUpdated", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(s.retention.Seconds())).SetName("lastUpdated_ttl"),
		},
	})
	if err != nil {
		return fmt.Errorf("create stays indexes: %w", err)
	}
	return nil
}

// UpsertListings sends one unordered bulk write; per-document errors are
// reported as failures and the rest of the batch still applies.
func (s *MongoStore) UpsertListings(ctx context.Context, listings []*models.Listing, now time.Time) UpsertResult {
	var res UpsertResult
	if len(listings) == 0 {
		return res
	}

	out, err := s.coll.BulkWrite(ctx, buildUpsertModels(listings, now), options.BulkWrite().SetOrdered(false))
	if out != nil {
		res.Inserted = int(out.UpsertedCount)
		res.Modified = int(out.MatchedCount)
	}
	if err == nil {
		return res
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		res.Err = fmt.Errorf("bulk write stays: %w", err)
		return res
	}
	for _, we := range bwe.WriteErrors {
		key := ""
		if we.Index >= 0 && we.Index < len(listings) {
			key = listings[we.Index].IdentityKey
		}
		res.Failed = append(res.Failed, models.MergeFailure{IdentityKey: key, Error: we.Message})
	}
	if bwe.WriteConcernError != nil {
		res.Err = fmt.Errorf("bulk write stays: %s", bwe.WriteConcernError.Message)
	}
	return res
}

// buildUpsertModels turns listings into updateOne upserts matched on
// (source, identityKey).
func buildUpsertModels(listings []*models.Listing, now time.Time) []mongo.WriteModel {
	out := make([]mongo.WriteModel, 0, len(listings))
	for _, l := range listings {
		set := bson.M{
			"name":        l.Name,
			"description": l.Description,
			"type":        l.Type,
			"address":     l.Address,
			"city":        l.City,
			"location":    l.Location,
			"price":       l.Price,
			"sourceUrl":   l.SourceURL,
			"lastUpdated": now,
		}
		if l.Rating != nil {
			set["rating"] = *l.Rating
		}

		onInsert := bson.M{"createdAt": now}
		addToSet := bson.M{}
		for field, values := range map[string][]string{"amenities": l.Amenities, "images": l.Images} {
			if len(values) == 0 {
				onInsert[field] = bson.A{}
				continue
			}
			addToSet[field] = bson.M{"$each": values}
		}

		update := bson.M{"$set": set, "$setOnInsert": onInsert}
		if len(addToSet) > 0 {
			update["$addToSet"] = addToSet
		}

		out = append(out, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"source": l.Source, "identityKey": l.IdentityKey}).
			SetUpdate(update).
			SetUpsert(true))
	}
	return out
}

// scopeFilter builds the (source, address|city ~ city) filter
func scopeFilter(q ListingQuery) bson.M {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(strings.TrimSpace(q.City)), Options: "i"}
	return bson.M{
		"source": q.Source,
		"$or": bson.A{
			bson.M{"address": pattern},
			bson.M{"city": pattern},
		},
	}
}

// FindListings returns unexpired listings in scope, newest first
func (s *MongoStore) FindListings(ctx context.Context, q ListingQuery) ([]*models.Listing, error) {
	filter := scopeFilter(q)
	filter["lastUpdated"] = bson.M{"$gt": s.now().Add(-s.retention)}

	opts := options.Find().SetSort(bson.D{{Key: "lastUpdated", Value: -1}, {Key: "identityKey", Value: 1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find stays: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []*models.Listing
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("decode stays: %w", err)
	}
	return listings, nil
}

// DeleteListings removes every listing in scope
func (s *MongoStore) DeleteListings(ctx context.Context, q ListingQuery) (int, error) {
	res, err := s.coll.DeleteMany(ctx, scopeFilter(q))
	if err != nil {
		return 0, fmt.Errorf("delete stays: %w", err)
	}
	return int(res.DeletedCount), nil
}

// Close disconnects the client
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
