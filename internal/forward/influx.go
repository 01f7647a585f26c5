package forward

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"

	"tkgateway/internal/core/model"
)

const influxMeasurement = "tk10x_event"

// InfluxPublisher stores every event as a point in a time-series bucket.
type InfluxPublisher struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func NewInfluxPublisher(url, token, org, bucket string) *InfluxPublisher {
	client := influxdb2.NewClient(url, token)
	return &InfluxPublisher{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}
}

func (p *InfluxPublisher) Name() string { return "influx" }

func (p *InfluxPublisher) Publish(ctx context.Context, ev *model.Event) error {
	return errors.Wrap(p.writeAPI.WritePoint(ctx, eventPoint(ev)), "influx write")
}

func (p *InfluxPublisher) Close() error {
	p.client.Close()
	return nil
}

func eventPoint(ev *model.Event) *write.Point {
	tags := map[string]string{
		"account":  ev.AccountID,
		"device":   ev.DeviceID,
		"status":   model.StatusDescription(ev.StatusCode),
		"protocol": ev.Protocol,
	}
	if ev.GeozoneID != "" {
		tags["geozone"] = ev.GeozoneID
	}
	fields := map[string]interface{}{
		"status_code": ev.StatusCode,
		"valid":       ev.Valid,
		"speed_kph":   ev.SpeedKPH,
		"heading":     ev.Heading,
		"odometer_km": ev.OdometerKM,
	}
	if ev.Valid {
		fields["latitude"] = ev.Latitude
		fields["longitude"] = ev.Longitude
		fields["altitude_m"] = ev.AltitudeM
	}
	if ev.BatteryV > 0 {
		fields["battery_v"] = ev.BatteryV
	}
	if ev.Satellites > 0 {
		fields["satellites"] = ev.Satellites
	}
	if ev.InputMask >= 0 {
		fields["input_mask"] = ev.InputMask
	}
	return write.NewPoint(influxMeasurement, tags, fields, ev.Time())
}
