package tk10x

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"tkgateway/internal/core/model"
	"tkgateway/internal/metrics"
	"tkgateway/internal/protocol"
	"tkgateway/internal/protocol/nmea"
	"tkgateway/internal/protocol/tk102"
	"tkgateway/internal/protocol/tk103"
	"tkgateway/internal/protocol/tknano"
)

const (
	// Frames shorter than this carry no decodable report.
	minFrameLength = 11
	imeiLength     = 15

	keepAlivePrefix = "##"
	imeiPrefix      = "imei:"
)

var (
	AckLoad = []byte("LOAD")
	AckOn   = []byte("ON")
)

// EventSink receives every decoded telemetry record and returns the number
// of events it saved.
type EventSink interface {
	Handle(ctx context.Context, rec *model.Telemetry, remoteIP string, remotePort int) (int, error)
}

type decodeFunc func(frame string, modemID string) (*protocol.Result, error)

// Handler dispatches complete frames to the dialect decoders.
type Handler struct {
	tk102   *tk102.Decoder
	tk103   *tk103.Decoder
	tk103v3 *tk103.DecoderV3
	nano    *tknano.Decoder
	sink    EventSink
	logger  *zap.Logger
}

func NewHandler(opts protocol.Options, sink EventSink, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		tk102:   tk102.NewDecoder(opts),
		tk103:   tk103.NewDecoder(opts),
		tk103v3: tk103.NewDecoderV3(opts),
		nano:    tknano.NewDecoder(opts),
		sink:    sink,
		logger:  logger,
	}
}

// HandleFrame processes one complete frame and returns the acknowledgment to
// write back, if any. Failures are logged and scoped to the frame.
func (h *Handler) HandleFrame(ctx context.Context, sess *Session, frame []byte) []byte {
	log := h.logger.With(zap.String("remote", sess.RemoteIP), zap.Stringer("dialect", sess.Dialect))

	if len(frame) == 0 {
		log.Warn("ignoring empty packet")
		metrics.FramesDropped.WithLabelValues("empty").Inc()
		return nil
	}
	if len(frame) == 1 && sess.Dialect.IsKnown() {
		// stray byte between reports
		return nil
	}

	s := trimPadding(frame)
	size := len(s)
	if frame[0] == '$' {
		// binary frames are sized on the raw bytes
		size = len(frame)
	}
	if size < minFrameLength {
		log.Error("unexpected packet length", zap.Int("length", size), zap.Binary("packet", frame))
		metrics.FramesDropped.WithLabelValues("short").Inc()
		return nil
	}

	sess.savedEvents = 0
	log.Debug("recv", zap.String("packet", s))

	switch {
	case strings.HasPrefix(s, keepAlivePrefix):
		metrics.FramesRecv.WithLabelValues(TK103_2.String()).Inc()
		return h.ack(log, "load", AckLoad)
	case strings.HasPrefix(s, imeiPrefix):
		return h.decode(ctx, log, sess, TK103_2, s, h.tk103.Decode)
	case strings.HasPrefix(s, "("):
		return h.decode(ctx, log, sess, TK103_3, s, h.tk103v3.Decode)
	case strings.HasPrefix(s, "*"):
		return h.decode(ctx, log, sess, TKnano_1, s, h.nano.Decode)
	case strings.HasPrefix(s, "$"):
		metrics.FramesRecv.WithLabelValues(TKnano_2.String()).Inc()
		if err := tknano.DecodeBinary(frame); err != nil {
			log.Warn("binary packet not decoded", zap.Error(err))
			metrics.DecodeErrors.WithLabelValues(TKnano_2.String(), reason(err)).Inc()
		}
		return nil
	case len(s) == imeiLength && nmea.IsNumeric(s):
		if sess.Dialect == Unknown || sess.Dialect == TK102 {
			sess.Dialect = TK103_1
		}
		metrics.FramesRecv.WithLabelValues(TK103_1.String()).Inc()
		return h.ack(log, "on", AckOn)
	default:
		return h.decode(ctx, log, sess, TK102, s, h.tk102.Decode)
	}
}

func (h *Handler) ack(log *zap.Logger, kind string, ack []byte) []byte {
	log.Debug("sending ack", zap.String("ack", string(ack)))
	metrics.AcksSent.WithLabelValues(kind).Inc()
	return ack
}

func (h *Handler) decode(ctx context.Context, log *zap.Logger, sess *Session, dialect Dialect, frame string, fn decodeFunc) []byte {
	start := time.Now()
	metrics.FramesRecv.WithLabelValues(dialect.String()).Inc()

	res, err := fn(frame, sess.ModemID)
	if res != nil && res.ModemID != "" {
		sess.ModemID = res.ModemID
	}
	if err != nil {
		log.Warn("packet not decoded", zap.Stringer("format", dialect), zap.String("modemId", sess.ModemID), zap.Error(err))
		metrics.DecodeErrors.WithLabelValues(dialect.String(), reason(err)).Inc()
		return nil
	}

	if res.Record != nil && h.sink != nil {
		n, err := h.sink.Handle(ctx, res.Record, sess.RemoteIP, sess.RemotePort)
		sess.savedEvents += n
		if err != nil {
			log.Error("record not saved", zap.String("modemId", res.Record.DeviceID), zap.Error(err))
		}
		metrics.ObserveDecodeLatency(start)
	}

	if res.Ack != nil {
		return h.ack(log, "handshake", res.Ack)
	}
	return nil
}

// trimPadding strips whitespace and non-printable bytes from both ends.
func trimPadding(frame []byte) string {
	return strings.TrimFunc(string(frame), func(r rune) bool {
		return r <= ' ' || r >= 0x7F
	})
}

func reason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrTooFewFields):
		return "too_few_fields"
	case errors.Is(err, protocol.ErrMissingModemID):
		return "missing_modem_id"
	case errors.Is(err, protocol.ErrUnsupportedMessage):
		return "unsupported_message"
	case errors.Is(err, protocol.ErrShortPacket):
		return "short_packet"
	case errors.Is(err, protocol.ErrUnsupported):
		return "unsupported"
	default:
		return "other"
	}
}
