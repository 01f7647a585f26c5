package tk103

import (
	"testing"
	"time"

	"github.com/pkg/errors"

	"tkgateway/internal/core/model"
	"tkgateway/internal/protocol"
)

func almostEqual(a, b, epsilon float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon
}

var fixedNow = time.Date(2011, 7, 9, 6, 0, 0, 0, time.UTC)

func testOptions() protocol.Options {
	return protocol.Options{
		MinSpeedKPH: 4.0,
		Codes:       protocol.StatusMap{"help me": model.StatusPanicOn},
		Now:         func() time.Time { return fixedNow },
	}
}

func TestDecoderTK103_2(t *testing.T) {
	tests := []struct {
		name        string
		frame       string
		session     string
		wantErr     error
		wantID      string
		wantTime    time.Time
		wantValid   bool
		wantLat     float64
		wantLon     float64
		wantSpeed   float64
		wantHeading float64
		wantEvent   string
		wantStatus  int
	}{
		{
			name:        "parked report",
			frame:       "imei:123451042191239,tracker,1107090553,9735551234,F,215314.000,A,4103.7641,N,14244.9450,W,0.08,;",
			wantID:      "123451042191239",
			wantTime:    time.Date(2011, 7, 8, 21, 53, 14, 0, time.UTC),
			wantValid:   true,
			wantLat:     41.062735,
			wantLon:     -142.749083,
			wantSpeed:   0,
			wantHeading: 0,
			wantEvent:   "tracker",
			wantStatus:  model.StatusLocation,
		},
		{
			name:        "alarm with trailing bang",
			frame:       "imei:123451042191239,help me!,1107090553,9735551234,F,055314.000,A,4103.7641,N,14244.9450,W,25.00,180.5;",
			wantID:      "123451042191239",
			wantTime:    time.Date(2011, 7, 9, 5, 53, 14, 0, time.UTC),
			wantValid:   true,
			wantLat:     41.062735,
			wantLon:     -142.749083,
			wantSpeed:   46.3,
			wantHeading: 180.5,
			wantEvent:   "help me",
			wantStatus:  model.StatusPanicOn,
		},
		{
			name:        "heading absent stays unknown",
			frame:       "imei:123451042191239,tracker,1107090553,9735551234,F,055314.000,A,4103.7641,N,14244.9450,W,25.00",
			wantID:      "123451042191239",
			wantTime:    time.Date(2011, 7, 9, 5, 53, 14, 0, time.UTC),
			wantValid:   true,
			wantLat:     41.062735,
			wantLon:     -142.749083,
			wantSpeed:   46.3,
			wantHeading: model.UnknownHeading,
			wantEvent:   "tracker",
			wantStatus:  model.StatusLocation,
		},
		{
			name:        "no fix",
			frame:       "imei:123451042191239,tracker,1107090553,9735551234,L,,V,,,,,,;",
			wantID:      "123451042191239",
			wantTime:    time.Date(2011, 7, 9, 0, 0, 0, 0, time.UTC),
			wantValid:   false,
			wantSpeed:   0,
			wantHeading: 0,
			wantEvent:   "tracker",
			wantStatus:  model.StatusLocation,
		},
		{
			name:        "identity from session",
			frame:       "imei:,tracker,1107090553,9735551234,F,055314.000,A,4103.7641,N,14244.9450,W,0.00,;",
			session:     "123451042191239",
			wantID:      "123451042191239",
			wantTime:    time.Date(2011, 7, 9, 5, 53, 14, 0, time.UTC),
			wantValid:   true,
			wantLat:     41.062735,
			wantLon:     -142.749083,
			wantEvent:   "tracker",
			wantStatus:  model.StatusLocation,
		},
		{
			name:    "too few fields",
			frame:   "imei:123451042191239,tracker,1107090553,9735551234,F,055314.000,A",
			wantErr: protocol.ErrTooFewFields,
		},
		{
			name:    "missing identity",
			frame:   "imei:,tracker,1107090553,9735551234,F,055314.000,A,4103.7641,N,14244.9450,W,0.00,;",
			wantErr: protocol.ErrMissingModemID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewDecoder(testOptions()).Decode(tt.frame, tt.session)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				if res != nil {
					t.Errorf("Decode() result = %+v, want nil", res)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			rec := res.Record
			if res.ModemID != tt.wantID || rec.DeviceID != tt.wantID {
				t.Errorf("identity = %q/%q, want %q", res.ModemID, rec.DeviceID, tt.wantID)
			}
			if rec.Timestamp != tt.wantTime.Unix() {
				t.Errorf("Timestamp = %v, want %v", rec.Time(), tt.wantTime)
			}
			if rec.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", rec.Valid, tt.wantValid)
			}
			if !almostEqual(rec.Latitude, tt.wantLat, 1e-6) || !almostEqual(rec.Longitude, tt.wantLon, 1e-6) {
				t.Errorf("position = %v/%v, want %v/%v", rec.Latitude, rec.Longitude, tt.wantLat, tt.wantLon)
			}
			if !almostEqual(rec.SpeedKPH, tt.wantSpeed, 1e-9) || !almostEqual(rec.Heading, tt.wantHeading, 1e-9) {
				t.Errorf("speed/heading = %v/%v, want %v/%v", rec.SpeedKPH, rec.Heading, tt.wantSpeed, tt.wantHeading)
			}
			if rec.EventCode != tt.wantEvent || rec.StatusCode != tt.wantStatus {
				t.Errorf("event = %q/%#x, want %q/%#x", rec.EventCode, rec.StatusCode, tt.wantEvent, tt.wantStatus)
			}
			if rec.InputMask != model.NoInputMask {
				t.Errorf("InputMask = %d, want none", rec.InputMask)
			}
		})
	}
}
