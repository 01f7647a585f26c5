package service

import (
	"context"
	"testing"

	"tkgateway/internal/core/model"
	"tkgateway/internal/core/repository"
)

func TestRegisterDevice(t *testing.T) {
	ctx := context.Background()
	svc := NewDeviceService(repository.NewInMemoryDeviceRepository(), nil)

	tests := []struct {
		name     string
		account  string
		device   string
		uniqueID string
		wantErr  bool
	}{
		{"valid", "acme", "truck1", "359586015829802", false},
		{"duplicate unique id", "acme", "truck2", "359586015829802", true},
		{"missing account", "", "truck3", "359586015829803", true},
		{"missing unique id", "acme", "truck4", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := svc.RegisterDevice(ctx, tt.account, tt.device, tt.uniqueID, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RegisterDevice() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && d.ID != tt.account+"/"+tt.device {
				t.Errorf("ID = %q", d.ID)
			}
		})
	}

	got, err := svc.GetDeviceByUniqueID(ctx, "359586015829802")
	if err != nil || got == nil || got.DeviceID != "truck1" {
		t.Errorf("GetDeviceByUniqueID() = %+v, %v", got, err)
	}
}

func TestSeedKeepsExistingState(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryDeviceRepository()
	svc := NewDeviceService(repo, nil)

	existing := model.NewDevice("acme", "truck1", "111111111111111")
	existing.LastOdometerKM = 42
	if err := repo.Create(ctx, existing); err != nil {
		t.Fatal(err)
	}

	seed := []*model.Device{
		{AccountID: "acme", DeviceID: "truck1", UniqueID: "111111111111111"},
		{AccountID: "acme", DeviceID: "truck2", UniqueID: "222222222222222", AllowedIPs: []string{"10.0.0.0/8"}, OdometerOffsetKM: 3},
		nil,
	}
	n, err := svc.Seed(ctx, seed)
	if err != nil || n != 1 {
		t.Fatalf("Seed() = %d, %v; want 1, nil", n, err)
	}

	d1, _ := svc.GetDevice(ctx, "acme/truck1")
	if d1 == nil || d1.LastOdometerKM != 42 {
		t.Errorf("existing device overwritten: %+v", d1)
	}
	d2, _ := svc.GetDeviceByUniqueID(ctx, "222222222222222")
	if d2 == nil || len(d2.AllowedIPs) != 1 || d2.OdometerOffsetKM != 3 {
		t.Errorf("seeded device = %+v", d2)
	}

	if _, err := svc.Seed(ctx, []*model.Device{{AccountID: "acme"}}); err == nil {
		t.Error("Seed() accepted a device without ids")
	}
}
