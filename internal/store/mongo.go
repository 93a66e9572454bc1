package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

const (
	searchLogCollection = "search_logs"
	abuseFlagCollection = "abuse_flags"
)

// MongoLog persists append-only logs that are not part of the core entity
// store: executed searches and abuse flags awaiting review.
type MongoLog struct {
	db *mongo.Database
}

var _ LogStore = (*MongoLog)(nil)

func NewMongoLog(db *mongo.Database) *MongoLog {
	return &MongoLog{db: db}
}

// EnsureIndexes creates the indexes used by the dashboard queries. Called
// once on startup after Mongo has connected.
func (m *MongoLog) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		searchLogCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_user_created"),
			},
		},
		abuseFlagCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "day", Value: 1}, {Key: "kind", Value: 1}},
				Options: options.Index().SetName("idx_user_day_kind"),
			},
			{
				Keys:    bson.D{{Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_created"),
			},
		},
	}
	for coll, idx := range indexes {
		if _, err := m.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

func (m *MongoLog) LogSearch(ctx context.Context, entry models.SearchLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := m.db.Collection(searchLogCollection).InsertOne(ctx, entry); err != nil {
		return transient("log search", err)
	}
	return nil
}

// RecentSearches returns a user's most recent searches, newest first.
func (m *MongoLog) RecentSearches(ctx context.Context, userID string, limit int64) ([]models.SearchLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cur, err := m.db.Collection(searchLogCollection).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, transient("recent searches", err)
	}
	defer cur.Close(ctx)

	var out []models.SearchLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, transient("recent searches", err)
	}
	return out, nil
}

// RecordAbuse stores a flag once per (user, day, kind); repeated detections
// on the same day only refresh the reason.
func (m *MongoLog) RecordAbuse(ctx context.Context, flag models.AbuseFlag) error {
	if flag.CreatedAt.IsZero() {
		flag.CreatedAt = time.Now().UTC()
	}
	filter := bson.M{"user_id": flag.UserID, "day": flag.Day, "kind": flag.Kind}
	update := bson.M{
		"$set":         bson.M{"reason": flag.Reason},
		"$setOnInsert": bson.M{"created_at": flag.CreatedAt},
	}
	_, err := m.db.Collection(abuseFlagCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return transient("record abuse", err)
	}
	return nil
}

func (m *MongoLog) ListAbuseFlags(ctx context.Context, limit int64) ([]models.AbuseFlag, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cur, err := m.db.Collection(abuseFlagCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, transient("list abuse flags", err)
	}
	defer cur.Close(ctx)

	var out []models.AbuseFlag
	if err := cur.All(ctx, &out); err != nil {
		return nil, transient("list abuse flags", err)
	}
	return out, nil
}
