package repository

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"tkgateway/internal/core/model"
)

// inMemoryDeviceRepository hands out copies so callers follow the same
// read-modify-write cycle as with a real store.
type inMemoryDeviceRepository struct {
	devices map[string]*model.Device
	mutex   sync.RWMutex
}

func NewInMemoryDeviceRepository() DeviceRepository {
	return &inMemoryDeviceRepository{
		devices: make(map[string]*model.Device),
	}
}

func (r *inMemoryDeviceRepository) Create(_ context.Context, device *model.Device) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.devices[device.ID]; exists {
		return errors.Wrapf(ErrAlreadyExists, "device %s", device.ID)
	}
	for _, d := range r.devices {
		if d.UniqueID == device.UniqueID {
			return errors.Wrapf(ErrAlreadyExists, "modem id %s", device.UniqueID)
		}
	}

	r.devices[device.ID] = device.Clone()
	return nil
}

func (r *inMemoryDeviceRepository) Update(_ context.Context, device *model.Device) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.devices[device.ID]; !exists {
		return errors.Wrapf(ErrNotFound, "device %s", device.ID)
	}

	r.devices[device.ID] = device.Clone()
	return nil
}

func (r *inMemoryDeviceRepository) Delete(_ context.Context, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.devices, id)
	return nil
}

func (r *inMemoryDeviceRepository) FindByID(_ context.Context, id string) (*model.Device, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if device, exists := r.devices[id]; exists {
		return device.Clone(), nil
	}
	return nil, nil
}

func (r *inMemoryDeviceRepository) FindAll(_ context.Context) ([]*model.Device, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	devices := make([]*model.Device, 0, len(r.devices))
	for _, device := range r.devices {
		devices = append(devices, device.Clone())
	}
	return devices, nil
}

func (r *inMemoryDeviceRepository) FindByUniqueID(_ context.Context, uniqueID string) (*model.Device, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, device := range r.devices {
		if device.UniqueID == uniqueID {
			return device.Clone(), nil
		}
	}
	return nil, nil
}
