package repository

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tkgateway/internal/cache"
	"tkgateway/internal/core/model"
)

func TestInMemoryDeviceRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryDeviceRepository()

	dev := model.NewDevice("acme", "truck1", "359586015829802")
	if err := repo.Create(ctx, dev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, model.NewDevice("acme", "truck2", "359586015829802")); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Create() duplicate modem id error = %v", err)
	}

	found, err := repo.FindByUniqueID(ctx, "359586015829802")
	if err != nil || found == nil {
		t.Fatalf("FindByUniqueID() = %v, %v", found, err)
	}
	found.LastOdometerKM = 42
	again, _ := repo.FindByUniqueID(ctx, "359586015829802")
	if again.LastOdometerKM != 0 {
		t.Error("mutating a loaded device changed the store")
	}

	if err := repo.Update(ctx, found); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	again, _ = repo.FindByID(ctx, dev.ID)
	if again.LastOdometerKM != 42 {
		t.Errorf("LastOdometerKM = %v after update, want 42", again.LastOdometerKM)
	}

	if err := repo.Update(ctx, model.NewDevice("acme", "ghost", "1")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() unknown error = %v", err)
	}
	if missing, err := repo.FindByUniqueID(ctx, "000"); missing != nil || err != nil {
		t.Errorf("FindByUniqueID(missing) = %v, %v", missing, err)
	}

	if err := repo.Delete(ctx, dev.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if all, _ := repo.FindAll(ctx); len(all) != 0 {
		t.Errorf("FindAll() = %d devices after delete", len(all))
	}
}

func TestInMemoryEventRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryEventRepository()
	dev := model.NewDevice("acme", "truck1", "359586015829802")
	rec := model.NewTelemetry(dev.UniqueID, "tk102")

	first := model.NewEvent(dev, rec, 200, model.StatusLocation, "")
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	dup := model.NewEvent(dev, rec, 200, model.StatusLocation, "")
	if err := repo.Insert(ctx, dup); !errors.Is(err, ErrDuplicateEvent) {
		t.Errorf("Insert() duplicate error = %v", err)
	}
	if err := repo.Insert(ctx, model.NewEvent(dev, rec, 200, model.StatusMotionInMotion, "")); err != nil {
		t.Errorf("Insert() other status error = %v", err)
	}
	if err := repo.Insert(ctx, model.NewEvent(dev, rec, 100, model.StatusLocation, "")); err != nil {
		t.Errorf("Insert() earlier error = %v", err)
	}

	events, err := repo.FindByDevice(ctx, "acme", "truck1", 0)
	if err != nil {
		t.Fatalf("FindByDevice() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("FindByDevice() = %d events, want 3", len(events))
	}
	if events[0].Timestamp != 100 || events[1].StatusCode != model.StatusLocation || events[2].StatusCode != model.StatusMotionInMotion {
		t.Errorf("events out of order: %+v", events)
	}
	latest, _ := repo.FindLatestByDevice(ctx, "acme", "truck1")
	if latest == nil || latest.Timestamp != 200 {
		t.Errorf("FindLatestByDevice() = %+v", latest)
	}
	limited, _ := repo.FindByDevice(ctx, "acme", "truck1", 2)
	if len(limited) != 2 {
		t.Fatalf("limit ignored: %d events", len(limited))
	}
	if limited[0].StatusCode != model.StatusLocation || limited[0].Timestamp != 200 || limited[1].StatusCode != model.StatusMotionInMotion {
		t.Errorf("limit kept the wrong events: %+v, %+v", limited[0], limited[1])
	}
}

func TestInMemoryGeozoneRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryGeozoneRepository(
		&model.Geozone{ID: "depot", AccountID: "acme", RadiusM: 100},
		&model.Geozone{ID: "port", RadiusM: 500},
		&model.Geozone{ID: "yard", AccountID: "other", RadiusM: 100},
	)
	if err := repo.Create(ctx, &model.Geozone{ID: "port"}); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Create() duplicate error = %v", err)
	}
	zones, err := repo.FindByAccount(ctx, "acme")
	if err != nil {
		t.Fatalf("FindByAccount() error = %v", err)
	}
	if len(zones) != 2 || zones[0].ID != "depot" || zones[1].ID != "port" {
		t.Errorf("FindByAccount() = %+v", zones)
	}
}

func TestCachedDeviceRepositoryWithoutRedis(t *testing.T) {
	cache.Initialize("", zap.NewNop())
	ctx := context.Background()
	inner := NewInMemoryDeviceRepository()
	repo := NewCachedDeviceRepository(inner, nil)

	dev := model.NewDevice("acme", "truck1", "359586015829802")
	if err := repo.Create(ctx, dev); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	found, err := repo.FindByUniqueID(ctx, dev.UniqueID)
	if err != nil || found == nil || found.ID != dev.ID {
		t.Fatalf("FindByUniqueID() = %v, %v", found, err)
	}
	found.LastInputMask = 5
	if err := repo.Update(ctx, found); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	again, _ := repo.FindByUniqueID(ctx, dev.UniqueID)
	if again.LastInputMask != 5 {
		t.Errorf("LastInputMask = %d, want 5", again.LastInputMask)
	}
	if err := repo.Delete(ctx, dev.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if gone, _ := repo.FindByUniqueID(ctx, dev.UniqueID); gone != nil {
		t.Error("device still found after delete")
	}
}
