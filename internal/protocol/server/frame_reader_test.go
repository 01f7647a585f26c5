package server

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"tkgateway/internal/protocol/tk10x"
)

func readAll(t *testing.T, r *FrameReader) ([]string, error) {
	t.Helper()
	var frames []string
	for i := 0; i < 100; i++ {
		frame, err := r.Next()
		if err != nil {
			return frames, err
		}
		frames = append(frames, string(frame))
	}
	t.Fatal("reader did not terminate")
	return nil, nil
}

func TestFrameReaderDialects(t *testing.T) {
	binary := "$" + strings.Repeat("\x01", 31)
	tests := []struct {
		name   string
		stream string
		want   []string
	}{
		{
			name:   "tk102 line with crlf",
			stream: "100406021359,+46702853880,GPRMC,021359.000,A,4103.7641,N,14244.9450,W,0.00,,060410,,,A*67,F,,imei:359586015829802,05,24.5,F:4.06V,1,135,45932,310,26,1234,5678\r\n",
			want:   []string{"100406021359,+46702853880,GPRMC,021359.000,A,4103.7641,N,14244.9450,W,0.00,,060410,,,A*67,F,,imei:359586015829802,05,24.5,F:4.06V,1,135,45932,310,26,1234,5678", "\n"},
		},
		{
			name:   "keep-alive and report without newline",
			stream: "##,imei:359586015829802,A;imei:359586015829802,tracker,1107090553,,F,055314.000,A,2234.0297,N,11405.9101,E,0.00,;",
			want: []string{
				"##,imei:359586015829802,A",
				"imei:359586015829802,tracker,1107090553,,F,055314.000,A,2234.0297,N,11405.9101,E,0.00,",
			},
		},
		{
			name:   "semicolon then newline",
			stream: "imei:359586015829802,tracker,1107090553,,F,055314.000,A,2234.0297,N,11405.9101,E,0.00,;\n",
			want:   []string{"imei:359586015829802,tracker,1107090553,,F,055314.000,A,2234.0297,N,11405.9101,E,0.00,", "\n"},
		},
		{
			name:   "parenthesized frames back to back",
			stream: "(013632651491BP05000013632651491110708A3301.8000S02729.3000E000.0221005000.0001000000L00000000)(013632651491BR00110708A3301.8000S02729.3000E000.0221005000.0001000000L00000000)",
			want: []string{
				"(013632651491BP05000013632651491110708A3301.8000S02729.3000E000.0221005000.0001000000L00000000)",
				"(013632651491BR00110708A3301.8000S02729.3000E000.0221005000.0001000000L00000000)",
			},
		},
		{
			name:   "nano frame then binary frame",
			stream: "*HQ,353505220903211,V1,121013,A,2234.0297,N,11405.9101,E,000.00,000,130610,FFFFFBFF#" + binary,
			want:   []string{"*HQ,353505220903211,V1,121013,A,2234.0297,N,11405.9101,E,000.00,000,130610,FFFFFBFF#", binary},
		},
		{
			name:   "stray separators between frames",
			stream: " \r(0BP00)",
			want:   []string{" ", "\r", "(0BP00)"},
		},
		{
			name:   "last line without terminator",
			stream: "imei:359586015829802,tracker",
			want:   []string{"imei:359586015829802,tracker"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewFrameReader(strings.NewReader(tt.stream), tk10x.NewSession("", 0, false), 1024, nil)
			got, err := readAll(t, r)
			if !errors.Is(err, io.EOF) {
				t.Fatalf("final error = %v, want io.EOF", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("frames = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("frame %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFrameReaderCustomTerminator(t *testing.T) {
	r := NewFrameReader(strings.NewReader("imei:1,a;imei:2,b;"), tk10x.NewSession("", 0, false), 1024, []byte{';'})
	got, err := readAll(t, r)
	if !errors.Is(err, io.EOF) || len(got) != 2 || got[1] != "imei:2,b" {
		t.Errorf("frames = %q, err = %v", got, err)
	}
}

func TestFrameReaderLineTerminatorsWithoutSemicolon(t *testing.T) {
	stream := "##,imei:1,A;imei:1,tracker\r\n"
	r := NewFrameReader(strings.NewReader(stream), tk10x.NewSession("", 0, false), 1024, []byte("\r\n"))
	frame, err := r.Next()
	if err != nil || string(frame) != "##,imei:1,A;imei:1,tracker" {
		t.Errorf("Next() = %q, %v", frame, err)
	}
}

func TestFrameReaderEndOfStreamOnDeadline(t *testing.T) {
	client, conn := net.Pipe()
	defer client.Close()
	defer conn.Close()

	report := "imei:359586015829802,tracker,1107090553,,F,055314.000,A,2234.0297,N,11405.9101,E,0.00,;"
	go func() {
		_, _ = client.Write([]byte(report))
	}()

	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	r := NewFrameReader(conn, tk10x.NewSession("", 0, true), 1024, nil)
	frame, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if string(frame) != report {
		t.Errorf("frame = %q, want %q", frame, report)
	}

	_ = conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, err := r.Next(); !isTimeout(err) {
		t.Errorf("Next() on a silent connection error = %v, want timeout", err)
	}
}

func TestFrameReaderEndOfStream(t *testing.T) {
	stream := "imei:359586015829802,tracker\r\nsecond line"
	r := NewFrameReader(strings.NewReader(stream), tk10x.NewSession("", 0, true), 1024, nil)
	got, err := readAll(t, r)
	if !errors.Is(err, io.EOF) || len(got) != 1 || got[0] != stream {
		t.Errorf("frames = %q, err = %v", got, err)
	}
}

func TestFrameReaderTooLong(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		eos    bool
	}{
		{"line", strings.Repeat("1", 100) + "\n", false},
		{"parenthesized", "(" + strings.Repeat("0", 100) + ")", false},
		{"end of stream", strings.Repeat("1", 100), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewFrameReader(strings.NewReader(tt.stream), tk10x.NewSession("", 0, tt.eos), 64, nil)
			if _, err := r.Next(); !errors.Is(err, ErrPacketTooLong) {
				t.Errorf("Next() error = %v, want ErrPacketTooLong", err)
			}
		})
	}
}

func TestFrameReaderTruncatedBinary(t *testing.T) {
	r := NewFrameReader(bytes.NewReader([]byte("$\x01\x02")), tk10x.NewSession("", 0, false), 1024, nil)
	if _, err := r.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Next() error = %v, want io.ErrUnexpectedEOF", err)
	}
}
