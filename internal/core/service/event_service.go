package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tkgateway/internal/core/geo"
	"tkgateway/internal/core/model"
	"tkgateway/internal/core/repository"
	"tkgateway/internal/metrics"
)

var (
	ErrUnknownDevice  = errors.New("unknown device")
	ErrUnauthorizedIP = errors.New("ip address not allowed for device")
	ErrInvalidRecord  = errors.New("record without device identity")
)

// Digital input bits tracked per device.
const inputMask = 0xFFFF

// EventConfig holds the synthesis policy. It is read once at startup.
type EventConfig struct {
	EstimateOdometer      bool
	SimulateGeozones      bool
	SimulateDigitalInputs int64
	LocationInMotion      bool
	MinimumMovedMeters    float64
	ServerID              string
}

// EventPublisher receives every stored event. Publish must not block.
type EventPublisher interface {
	Publish(event *model.Event)
}

// EventService turns decoded telemetry into stored events and keeps the
// device's last-known state current. Decodes for the same device are
// serialized.
type EventService struct {
	devices   repository.DeviceRepository
	events    repository.EventRepository
	geozones  repository.GeozoneRepository
	publisher EventPublisher
	cfg       EventConfig
	locks     *keyedMutex
	logger    *zap.Logger
	now       func() time.Time
}

func NewEventService(devices repository.DeviceRepository, events repository.EventRepository, geozones repository.GeozoneRepository, cfg EventConfig, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{
		devices:  devices,
		events:   events,
		geozones: geozones,
		cfg:      cfg,
		locks:    newKeyedMutex(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetPublisher installs the asynchronous event forwarder.
func (s *EventService) SetPublisher(p EventPublisher) {
	s.publisher = p
}

// SetClock replaces the wall clock used for connection bookkeeping.
func (s *EventService) SetClock(now func() time.Time) {
	s.now = now
}

// decodeState tracks the events of one Handle call.
type decodeState struct {
	device  *model.Device
	rec     *model.Telemetry
	valid   bool
	emitted map[model.EventKey]bool
	saved   int
}

// Handle applies the synthesis policy to rec, received from remoteIP and
// remotePort. It returns the number of events emitted. A device write-back
// failure is logged and does not fail the call.
func (s *EventService) Handle(ctx context.Context, rec *model.Telemetry, remoteIP string, remotePort int) (int, error) {
	if rec == nil || rec.DeviceID == "" {
		return 0, ErrInvalidRecord
	}

	unlock := s.locks.Lock(rec.DeviceID)
	defer unlock()

	device, err := s.devices.FindByUniqueID(ctx, rec.DeviceID)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("load_device").Inc()
		return 0, errors.Wrapf(err, "load device %s", rec.DeviceID)
	}
	if device == nil {
		metrics.RejectedRecords.WithLabelValues("unknown_device").Inc()
		return 0, errors.Wrapf(ErrUnknownDevice, "modem id %s", rec.DeviceID)
	}
	log := s.logger.With(zap.String("account", device.AccountID), zap.String("device", device.DeviceID))

	if !device.IsValidIPAddress(remoteIP) {
		metrics.RejectedRecords.WithLabelValues("ip").Inc()
		log.Error("invalid ip address from device", zap.String("ip", remoteIP), zap.Strings("allowed", device.AllowedIPs))
		return 0, errors.Wrapf(ErrUnauthorizedIP, "%s from %s", rec.DeviceID, remoteIP)
	}

	device.LastIPAddress = remoteIP
	device.LastPort = remotePort
	device.LastConnectTime = s.now().Unix()
	if s.cfg.ServerID != "" {
		device.ServerID = s.cfg.ServerID
	}

	point := rec.Point()
	st := &decodeState{
		device:  device,
		valid:   rec.Valid && point.IsValid(),
		emitted: make(map[model.EventKey]bool),
	}
	st.rec = s.derive(device, rec, point, st.valid)

	if s.cfg.SimulateGeozones && st.valid && s.geozones != nil {
		zones, err := s.geozones.FindByAccount(ctx, device.AccountID)
		if err != nil {
			metrics.StoreErrors.WithLabelValues("load_geozones").Inc()
			log.Warn("geozones not loaded", zap.Error(err))
		}
		for _, tr := range device.CheckGeozoneTransitions(rec.Timestamp, point, zones) {
			s.emit(ctx, log, st, tr.Timestamp, tr.StatusCode, tr.GeozoneID)
		}
	}

	if rec.HasInputMask() {
		if s.cfg.SimulateDigitalInputs > 0 {
			changed := (device.LastInputMask ^ rec.InputMask) & s.cfg.SimulateDigitalInputs
			for bit := 0; bit < model.MaxInputBits; bit++ {
				m := int64(1) << bit
				if changed&m == 0 {
					continue
				}
				s.emit(ctx, log, st, rec.Timestamp, model.InputStatusCode(bit, rec.InputMask&m != 0), "")
			}
		}
		device.LastInputMask = rec.InputMask & inputMask
	}

	code := rec.StatusCode
	speed := st.rec.SpeedKPH
	switch {
	case code < 0:
		log.Debug("ignoring event per status table", zap.String("eventCode", rec.EventCode))
	case st.saved > 0 && (code == model.StatusLocation || code == model.StatusNone):
		// transitions above already carry the position
	case code == model.StatusNone:
		if speed > 0 {
			s.emit(ctx, log, st, rec.Timestamp, model.StatusMotionInMotion, "")
		} else {
			s.emit(ctx, log, st, rec.Timestamp, model.StatusLocation, "")
		}
	case code != model.StatusLocation:
		s.emit(ctx, log, st, rec.Timestamp, code, "")
	case s.cfg.LocationInMotion && speed > 0:
		s.emit(ctx, log, st, rec.Timestamp, model.StatusMotionInMotion, "")
	}

	// Independent of the chain above: a fix that moved away from the last
	// stored location is always recorded, even next to an in-motion event.
	if st.valid && !device.IsNearLastValidLocation(point, s.cfg.MinimumMovedMeters) {
		s.emit(ctx, log, st, rec.Timestamp, model.StatusLocation, "")
	}

	if err := s.devices.Update(ctx, device); err != nil {
		metrics.StoreErrors.WithLabelValues("update_device").Inc()
		log.Error("unable to update device", zap.Error(err))
	}
	return st.saved, nil
}

// derive fills in heading and odometer. rec itself is not modified.
func (s *EventService) derive(device *model.Device, rec *model.Telemetry, point geo.Point, valid bool) *model.Telemetry {
	out := *rec
	if out.SpeedKPH < 0 {
		out.SpeedKPH = 0
	}
	if !valid {
		out.Latitude, out.Longitude = 0, 0
	}

	if out.Heading < 0 {
		out.Heading = 0
		if valid && out.SpeedKPH > 0 {
			if last := device.LastValidLocation(); last.IsValid() {
				out.Heading = last.HeadingTo(point)
			}
		}
	}

	if out.OdometerKM <= 0 {
		if s.cfg.EstimateOdometer && valid {
			out.OdometerKM = device.NextOdometerKM(point)
		} else {
			out.OdometerKM = device.LastOdometerKM
		}
	} else {
		out.OdometerKM = device.AdjustOdometerKM(out.OdometerKM)
	}
	return &out
}

// emit inserts one event. Keys already emitted for this decode are skipped.
// Emitting a valid fix advances the device's last valid location and
// odometer.
func (s *EventService) emit(ctx context.Context, log *zap.Logger, st *decodeState, ts int64, code int, geozoneID string) {
	ev := model.NewEvent(st.device, st.rec, ts, code, geozoneID)
	ev.Valid = st.valid
	key := ev.Key()
	if st.emitted[key] {
		log.Debug("skipping duplicate event", zap.String("status", model.StatusDescription(code)))
		return
	}
	st.emitted[key] = true
	st.saved++

	log.Info("event",
		zap.String("status", model.StatusDescription(code)),
		zap.Int64("timestamp", ts),
		zap.Bool("valid", ev.Valid),
		zap.Float64("lat", ev.Latitude),
		zap.Float64("lon", ev.Longitude),
		zap.Float64("speedKph", ev.SpeedKPH),
		zap.String("geozone", geozoneID),
	)

	if st.valid {
		st.device.SetLastValidLocation(st.rec.Point(), ts)
	}
	if ev.OdometerKM > st.device.LastOdometerKM {
		st.device.LastOdometerKM = ev.OdometerKM
	}
	if ts > st.device.LastEventTime {
		st.device.LastEventTime = ts
	}

	if err := s.events.Insert(ctx, ev); err != nil {
		metrics.StoreErrors.WithLabelValues("insert_event").Inc()
		log.Error("unable to insert event", zap.Error(err))
		return
	}
	metrics.EventsSaved.WithLabelValues(model.StatusDescription(code)).Inc()
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}
