package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tkgateway/internal/cache"
	"tkgateway/internal/core/model"
)

const deviceCacheTTL = 10 * time.Minute

// CachedDeviceRepository fronts a DeviceRepository with the Redis cache for
// modem id lookups. Writes go to the store first and then refresh the
// cache, so a failed cache write only costs a later miss.
type CachedDeviceRepository struct {
	DeviceRepository
	logger *zap.Logger
}

func NewCachedDeviceRepository(inner DeviceRepository, logger *zap.Logger) *CachedDeviceRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedDeviceRepository{DeviceRepository: inner, logger: logger}
}

func deviceCacheKey(uniqueID string) string {
	return "device:uid:" + uniqueID
}

func (r *CachedDeviceRepository) FindByUniqueID(ctx context.Context, uniqueID string) (*model.Device, error) {
	var device model.Device
	if err := cache.Get(ctx, deviceCacheKey(uniqueID), &device); err == nil {
		return &device, nil
	} else if err != cache.ErrMiss {
		r.logger.Debug("device cache read failed", zap.String("uniqueId", uniqueID), zap.Error(err))
	}

	found, err := r.DeviceRepository.FindByUniqueID(ctx, uniqueID)
	if err != nil || found == nil {
		return found, err
	}
	r.store(ctx, found)
	return found, nil
}

func (r *CachedDeviceRepository) Update(ctx context.Context, device *model.Device) error {
	if err := r.DeviceRepository.Update(ctx, device); err != nil {
		_ = cache.Delete(ctx, deviceCacheKey(device.UniqueID))
		return err
	}
	r.store(ctx, device)
	return nil
}

func (r *CachedDeviceRepository) Delete(ctx context.Context, id string) error {
	device, err := r.DeviceRepository.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if device != nil {
		_ = cache.Delete(ctx, deviceCacheKey(device.UniqueID))
	}
	return r.DeviceRepository.Delete(ctx, id)
}

func (r *CachedDeviceRepository) store(ctx context.Context, device *model.Device) {
	if err := cache.Set(ctx, deviceCacheKey(device.UniqueID), device, deviceCacheTTL); err != nil {
		r.logger.Debug("device cache write failed", zap.String("uniqueId", device.UniqueID), zap.Error(err))
	}
}
