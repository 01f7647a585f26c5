package tk10x

import (
	"time"

	"tkgateway/internal/protocol/tknano"
)

// DirectiveKind tells the transport how to delimit the next frame.
type DirectiveKind int

const (
	// Incremental asks for more bytes: the buffer must reach Length before
	// the sizer is consulted again.
	Incremental DirectiveKind = iota
	// Exact means the frame is exactly Length bytes.
	Exact
	// LineTerminator means the frame ends at the next line terminator.
	LineTerminator
	// EndOfStream means the frame is everything until the peer stops sending.
	EndOfStream
)

func (k DirectiveKind) String() string {
	switch k {
	case Incremental:
		return "incremental"
	case Exact:
		return "exact"
	case LineTerminator:
		return "line"
	case EndOfStream:
		return "eos"
	default:
		return "invalid"
	}
}

// Directive is the answer of the frame sizer.
type Directive struct {
	Kind   DirectiveKind
	Length int
}

// Session is the state of one device connection. It is owned by the
// connection goroutine and must not be shared.
type Session struct {
	Dialect     Dialect
	ModemID     string
	RemoteIP    string
	RemotePort  int
	EndOfStream bool
	ConnectedAt time.Time

	savedEvents int
}

func NewSession(remoteIP string, remotePort int, endOfStream bool) *Session {
	return &Session{
		RemoteIP:    remoteIP,
		RemotePort:  remotePort,
		EndOfStream: endOfStream,
		ConnectedAt: time.Now(),
	}
}

// SavedEvents returns the number of events saved for the last frame.
func (s *Session) SavedEvents() int {
	return s.savedEvents
}

func (s *Session) lineDirective() Directive {
	if s.EndOfStream {
		return Directive{Kind: EndOfStream}
	}
	return Directive{Kind: LineTerminator}
}

// PacketLength sizes the frame that starts at buf[0]. It updates the dialect
// guess from the first byte and never touches the session identity. Calling
// it twice with the same bytes returns the same directive.
func (s *Session) PacketLength(buf []byte) Directive {
	n := len(buf)
	if n < 1 {
		return Directive{Kind: Incremental, Length: 1}
	}

	switch buf[0] {
	case '(':
		s.Dialect = TK103_3
		return untilTerminator(buf, ')')
	case '*':
		s.Dialect = TKnano_1
		return untilTerminator(buf, '#')
	case '$':
		s.Dialect = TKnano_2
		return Directive{Kind: Exact, Length: tknano.BinaryPacketLength}
	case '#', 'i', 'I':
		s.Dialect = TK103_2
		return s.lineDirective()
	}

	if n == 1 && buf[0] <= ' ' {
		return Directive{Kind: Exact, Length: 1}
	}

	s.Dialect = TK102
	return s.lineDirective()
}

func untilTerminator(buf []byte, term byte) Directive {
	n := len(buf)
	if n > 1 && buf[n-1] == term {
		return Directive{Kind: Exact, Length: n}
	}
	return Directive{Kind: Incremental, Length: n + 1}
}
