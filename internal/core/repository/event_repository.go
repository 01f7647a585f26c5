package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tkgateway/internal/core/model"
)

// EventRepository persists synthesized events. Insert fails with
// ErrDuplicateEvent when the (account, device, timestamp, status) key
// already exists.
//
// FindByDevice returns the newest limit events of a device (all of them
// when limit is 0) in chronological order. Events sharing a timestamp are
// ordered by status code.
type EventRepository interface {
	Insert(ctx context.Context, event *model.Event) error
	FindByDevice(ctx context.Context, accountID, deviceID string, limit int) ([]*model.Event, error)
	FindLatestByDevice(ctx context.Context, accountID, deviceID string) (*model.Event, error)
}

type MongoEventRepository struct {
	collection *mongo.Collection
}

func NewMongoEventRepository(db *mongo.Database) *MongoEventRepository {
	return &MongoEventRepository{
		collection: db.Collection("events"),
	}
}

// EnsureIndexes creates the unique event key index.
func (r *MongoEventRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "accountid", Value: 1},
			{Key: "deviceid", Value: 1},
			{Key: "timestamp", Value: 1},
			{Key: "statuscode", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("event_key"),
	})
	return errors.Wrap(err, "create event index")
}

func (r *MongoEventRepository) Insert(ctx context.Context, event *model.Event) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, event)
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrapf(ErrDuplicateEvent, "%s/%s %d %#x", event.AccountID, event.DeviceID, event.Timestamp, event.StatusCode)
	}
	return errors.Wrap(err, "insert event")
}

func (r *MongoEventRepository) FindByDevice(ctx context.Context, accountID, deviceID string, limit int) ([]*model.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "statuscode", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, bson.M{"accountid": accountID, "deviceid": deviceID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find events")
	}
	defer cursor.Close(ctx)

	var events []*model.Event
	if err = cursor.All(ctx, &events); err != nil {
		return nil, errors.Wrap(err, "decode events")
	}
	reverseEvents(events)
	return events, nil
}

func (r *MongoEventRepository) FindLatestByDevice(ctx context.Context, accountID, deviceID string) (*model.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "statuscode", Value: -1}})
	var event model.Event
	err := r.collection.FindOne(ctx, bson.M{"accountid": accountID, "deviceid": deviceID}, opts).Decode(&event)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find latest event")
	}
	return &event, nil
}
