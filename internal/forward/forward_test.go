package forward

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"tkgateway/internal/core/model"
)

type fakePublisher struct {
	name string
	err  error
	gate chan struct{}

	mu     sync.Mutex
	events []*model.Event
	closed bool
}

func (f *fakePublisher) Name() string { return f.name }

func (f *fakePublisher) Publish(ctx context.Context, ev *model.Event) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePublisher) received() []*model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Event(nil), f.events...)
}

func testEvent(ts int64, code int) *model.Event {
	return &model.Event{
		AccountID:  "acme",
		DeviceID:   "truck1",
		UniqueID:   "359586015829802",
		Timestamp:  ts,
		StatusCode: code,
		Valid:      true,
		Latitude:   45.0,
		Longitude:  7.0,
		SpeedKPH:   32.5,
		InputMask:  -1,
		Protocol:   "tk102",
	}
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	good := &fakePublisher{name: "good"}
	failing := &fakePublisher{name: "failing", err: errors.New("broker down")}
	d := NewDispatcher(16, nil, good, failing)
	d.Start(context.Background())

	for i := int64(0); i < 10; i++ {
		d.Publish(testEvent(1000+i, model.StatusLocation))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, p := range []*fakePublisher{good, failing} {
		got := p.received()
		if len(got) != 10 {
			t.Fatalf("%s received %d events, want 10", p.name, len(got))
		}
		for i, ev := range got {
			if ev.Timestamp != 1000+int64(i) {
				t.Errorf("%s event %d timestamp = %d", p.name, i, ev.Timestamp)
			}
		}
		if !p.closed {
			t.Errorf("%s not closed", p.name)
		}
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	slow := &fakePublisher{name: "slow", gate: make(chan struct{})}
	d := NewDispatcher(2, nil, slow)
	d.Start(context.Background())

	// One event is held by the worker, two fill the queue, the rest drop.
	for i := int64(0); i < 10; i++ {
		d.Publish(testEvent(i, model.StatusLocation))
		if i == 0 {
			time.Sleep(50 * time.Millisecond)
		}
	}
	close(slow.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := len(slow.received()); got != 3 {
		t.Errorf("delivered %d events, want 3", got)
	}
}

func TestDispatcherPublishAfterClose(t *testing.T) {
	p := &fakePublisher{name: "p"}
	d := NewDispatcher(4, nil, p)
	d.Start(context.Background())
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	d.Publish(testEvent(1, model.StatusLocation))
	if err := d.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if len(p.received()) != 0 {
		t.Error("event delivered after close")
	}
}

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w}
	ev := testEvent(1700000000, model.StatusMotionInMotion)
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "acme/truck1" {
		t.Errorf("Key = %q", msg.Key)
	}
	if !msg.Time.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Time = %v", msg.Time)
	}
	var decoded model.Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("Value is not JSON: %v", err)
	}
	if decoded.StatusCode != model.StatusMotionInMotion || decoded.UniqueID != ev.UniqueID {
		t.Errorf("decoded = %+v", decoded)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["status"] != "InMotion" || headers["protocol"] != "tk102" {
		t.Errorf("Headers = %v", headers)
	}
}

func TestMQTTTopic(t *testing.T) {
	if got := mqttTopic("tk10x/events", testEvent(1, model.StatusLocation)); got != "tk10x/events/acme/truck1" {
		t.Errorf("mqttTopic() = %q", got)
	}
}

func TestEventPoint(t *testing.T) {
	tests := []struct {
		name       string
		valid      bool
		geozone    string
		wantFields []string
		noFields   []string
		wantTags   int
	}{
		{"valid fix", true, "", []string{"latitude", "longitude", "speed_kph", "status_code"}, []string{"input_mask", "battery_v"}, 4},
		{"no fix in geozone", false, "depot", []string{"speed_kph", "valid"}, []string{"latitude", "longitude"}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := testEvent(1700000000, model.StatusGeofenceArrive)
			ev.Valid = tt.valid
			ev.GeozoneID = tt.geozone
			pt := eventPoint(ev)
			if pt.Name() != influxMeasurement {
				t.Errorf("Name() = %q", pt.Name())
			}
			if len(pt.TagList()) != tt.wantTags {
				t.Errorf("tags = %d, want %d", len(pt.TagList()), tt.wantTags)
			}
			fields := map[string]bool{}
			for _, f := range pt.FieldList() {
				fields[f.Key] = true
			}
			for _, k := range tt.wantFields {
				if !fields[k] {
					t.Errorf("missing field %q", k)
				}
			}
			for _, k := range tt.noFields {
				if fields[k] {
					t.Errorf("unexpected field %q", k)
				}
			}
		})
	}
}
