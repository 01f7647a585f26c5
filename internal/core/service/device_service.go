package service

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tkgateway/internal/core/model"
	"tkgateway/internal/core/repository"
)

// DeviceService provisions the device registry the gateway authorizes
// decodes against.
type DeviceService interface {
	RegisterDevice(ctx context.Context, accountID, deviceID, uniqueID string, allowedIPs []string) (*model.Device, error)
	UpdateDevice(ctx context.Context, device *model.Device) error
	DeleteDevice(ctx context.Context, id string) error
	GetDevice(ctx context.Context, id string) (*model.Device, error)
	GetDeviceByUniqueID(ctx context.Context, uniqueID string) (*model.Device, error)
	GetAllDevices(ctx context.Context) ([]*model.Device, error)
	Seed(ctx context.Context, devices []*model.Device) (int, error)
}

type deviceService struct {
	deviceRepo repository.DeviceRepository
	logger     *zap.Logger
}

func NewDeviceService(deviceRepo repository.DeviceRepository, logger *zap.Logger) DeviceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &deviceService{
		deviceRepo: deviceRepo,
		logger:     logger,
	}
}

func (s *deviceService) RegisterDevice(ctx context.Context, accountID, deviceID, uniqueID string, allowedIPs []string) (*model.Device, error) {
	if accountID == "" || deviceID == "" || uniqueID == "" {
		return nil, errors.New("invalid device data")
	}

	device := model.NewDevice(accountID, deviceID, uniqueID)
	device.AllowedIPs = allowedIPs
	if err := s.deviceRepo.Create(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

func (s *deviceService) UpdateDevice(ctx context.Context, device *model.Device) error {
	if device == nil || device.ID == "" {
		return errors.New("invalid device ID")
	}
	return s.deviceRepo.Update(ctx, device)
}

func (s *deviceService) DeleteDevice(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("invalid device ID")
	}
	return s.deviceRepo.Delete(ctx, id)
}

func (s *deviceService) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	if id == "" {
		return nil, errors.New("invalid device ID")
	}
	return s.deviceRepo.FindByID(ctx, id)
}

func (s *deviceService) GetDeviceByUniqueID(ctx context.Context, uniqueID string) (*model.Device, error) {
	if uniqueID == "" {
		return nil, errors.New("invalid unique ID")
	}
	return s.deviceRepo.FindByUniqueID(ctx, uniqueID)
}

func (s *deviceService) GetAllDevices(ctx context.Context) ([]*model.Device, error) {
	return s.deviceRepo.FindAll(ctx)
}

// Seed registers devices that are not in the registry yet. Existing devices
// keep their stored state. It returns the number of devices created.
func (s *deviceService) Seed(ctx context.Context, devices []*model.Device) (int, error) {
	created := 0
	for _, d := range devices {
		if d == nil {
			continue
		}
		if d.AccountID == "" || d.DeviceID == "" || d.UniqueID == "" {
			return created, errors.Errorf("seed device %q: missing account, device or unique id", d.UniqueID)
		}
		device := model.NewDevice(d.AccountID, d.DeviceID, d.UniqueID)
		device.Description = d.Description
		device.AllowedIPs = d.AllowedIPs
		device.OdometerOffsetKM = d.OdometerOffsetKM
		err := s.deviceRepo.Create(ctx, device)
		if errors.Is(err, repository.ErrAlreadyExists) {
			s.logger.Debug("device already registered", zap.String("uniqueId", d.UniqueID))
			continue
		}
		if err != nil {
			return created, errors.Wrapf(err, "seed device %s", d.UniqueID)
		}
		created++
	}
	return created, nil
}
