package repository

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"tkgateway/internal/core/model"
)

// GeozoneRepository returns the zones an account's devices are checked
// against. Zones without an account apply to every account.
type GeozoneRepository interface {
	Create(ctx context.Context, zone *model.Geozone) error
	FindByAccount(ctx context.Context, accountID string) ([]*model.Geozone, error)
}

type MongoGeozoneRepository struct {
	collection *mongo.Collection
}

func NewMongoGeozoneRepository(db *mongo.Database) *MongoGeozoneRepository {
	return &MongoGeozoneRepository{
		collection: db.Collection("geozones"),
	}
}

func (r *MongoGeozoneRepository) Create(ctx context.Context, zone *model.Geozone) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.collection.InsertOne(ctx, zone)
	return errors.Wrap(err, "insert geozone")
}

func (r *MongoGeozoneRepository) FindByAccount(ctx context.Context, accountID string) ([]*model.Geozone, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"accountid": bson.M{"$in": bson.A{accountID, ""}}}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "find geozones")
	}
	defer cursor.Close(ctx)

	var zones []*model.Geozone
	if err = cursor.All(ctx, &zones); err != nil {
		return nil, errors.Wrap(err, "decode geozones")
	}
	return zones, nil
}

type inMemoryGeozoneRepository struct {
	zones []*model.Geozone
	mutex sync.RWMutex
}

func NewInMemoryGeozoneRepository(zones ...*model.Geozone) GeozoneRepository {
	return &inMemoryGeozoneRepository{zones: zones}
}

func (r *inMemoryGeozoneRepository) Create(_ context.Context, zone *model.Geozone) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, z := range r.zones {
		if z.ID == zone.ID {
			return errors.Wrapf(ErrAlreadyExists, "geozone %s", zone.ID)
		}
	}
	r.zones = append(r.zones, zone)
	return nil
}

func (r *inMemoryGeozoneRepository) FindByAccount(_ context.Context, accountID string) ([]*model.Geozone, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Geozone
	for _, z := range r.zones {
		if z.AccountID == "" || z.AccountID == accountID {
			result = append(result, z)
		}
	}
	return result, nil
}
