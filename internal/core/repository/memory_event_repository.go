package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"tkgateway/internal/core/model"
)

type inMemoryEventRepository struct {
	events map[model.EventKey]*model.Event
	mutex  sync.RWMutex
}

func NewInMemoryEventRepository() EventRepository {
	return &inMemoryEventRepository{
		events: make(map[model.EventKey]*model.Event),
	}
}

func (r *inMemoryEventRepository) Insert(_ context.Context, event *model.Event) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := event.Key()
	if _, exists := r.events[key]; exists {
		return errors.Wrapf(ErrDuplicateEvent, "%s/%s %d %#x", key.AccountID, key.DeviceID, key.Timestamp, key.StatusCode)
	}
	r.events[key] = event
	return nil
}

func (r *inMemoryEventRepository) FindByDevice(_ context.Context, accountID, deviceID string, limit int) ([]*model.Event, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Event
	for key, event := range r.events {
		if key.AccountID == accountID && key.DeviceID == deviceID {
			result = append(result, event)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp > result[j].Timestamp
		}
		return result[i].StatusCode > result[j].StatusCode
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	reverseEvents(result)
	return result, nil
}

func (r *inMemoryEventRepository) FindLatestByDevice(ctx context.Context, accountID, deviceID string) (*model.Event, error) {
	events, err := r.FindByDevice(ctx, accountID, deviceID, 0)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return events[len(events)-1], nil
}

// reverseEvents turns a newest-first page into chronological order.
func reverseEvents(events []*model.Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}
