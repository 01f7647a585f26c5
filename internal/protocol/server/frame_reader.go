package server

import (
	"bufio"
	"bytes"
	"io"
	"net"

	"github.com/pkg/errors"

	"tkgateway/internal/protocol/tk10x"
)

// ErrPacketTooLong is returned when a frame grows past the configured limit.
var ErrPacketTooLong = errors.New("packet exceeds maximum length")

// DefaultTerminators end line-delimited frames. ';' closes the TK103-2
// keep-alive and report lines, which devices send without a newline.
var DefaultTerminators = []byte{'\r', '\n', ';'}

// FrameReader splits a device stream into frames as directed by the
// session's frame sizer.
type FrameReader struct {
	r           *bufio.Reader
	sess        *tk10x.Session
	max         int
	terminators []byte
}

func NewFrameReader(r io.Reader, sess *tk10x.Session, maxLength int, terminators []byte) *FrameReader {
	if len(terminators) == 0 {
		terminators = DefaultTerminators
	}
	if maxLength <= 0 {
		maxLength = 1024
	}
	return &FrameReader{
		r:           bufio.NewReader(r),
		sess:        sess,
		max:         maxLength,
		terminators: terminators,
	}
}

// Next returns the next complete frame. Line frames are returned without
// their terminator; a line cut short by the end of the stream is returned
// as is. io.EOF is returned only between frames.
func (f *FrameReader) Next() ([]byte, error) {
	var buf []byte
	for {
		d := f.sess.PacketLength(buf)
		switch d.Kind {
		case tk10x.Incremental, tk10x.Exact:
			if d.Length > f.max {
				return nil, ErrPacketTooLong
			}
			if d.Kind == tk10x.Incremental && d.Length <= len(buf) {
				return nil, errors.Errorf("frame sizer asked for %d bytes with %d buffered", d.Length, len(buf))
			}
			if d.Length > len(buf) {
				more := make([]byte, d.Length-len(buf))
				n, err := io.ReadFull(f.r, more)
				buf = append(buf, more[:n]...)
				if err != nil {
					if len(buf) == 0 {
						return nil, err
					}
					if errors.Is(err, io.EOF) {
						err = io.ErrUnexpectedEOF
					}
					return nil, err
				}
			}
			if d.Kind == tk10x.Exact {
				return buf[:d.Length], nil
			}
		case tk10x.LineTerminator:
			return f.readLine(buf)
		case tk10x.EndOfStream:
			return f.readToEnd(buf)
		default:
			return nil, errors.New("invalid frame directive")
		}
	}
}

func (f *FrameReader) readLine(buf []byte) ([]byte, error) {
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return buf, nil
			}
			return nil, err
		}
		if bytes.IndexByte(f.terminators, b) >= 0 {
			return buf, nil
		}
		if len(buf) >= f.max {
			return nil, ErrPacketTooLong
		}
		buf = append(buf, b)
	}
}

// readToEnd collects bytes until the peer closes the stream or stops
// sending. A read deadline that fires after some bytes arrived ends the
// frame the same way EOF does.
func (f *FrameReader) readToEnd(buf []byte) ([]byte, error) {
	rest, err := io.ReadAll(io.LimitReader(f.r, int64(f.max-len(buf)+1)))
	buf = append(buf, rest...)
	if len(buf) > f.max {
		return nil, ErrPacketTooLong
	}
	if err != nil && (len(buf) == 0 || !isTimeout(err)) {
		return nil, err
	}
	return buf, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
