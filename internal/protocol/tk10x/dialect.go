// Package tk10x glues the TK10x dialect decoders into a per-connection
// protocol state machine: it sizes frames, picks the decoder for each frame
// and hands decoded records to the event synthesizer.
package tk10x

// Dialect is the wire format a connection is believed to speak.
type Dialect int

const (
	Unknown Dialect = iota
	TK102
	TK103_1
	TK103_2
	TK103_3
	TKnano_1
	TKnano_2
)

func (d Dialect) String() string {
	switch d {
	case TK102:
		return "tk102"
	case TK103_1:
		return "tk103-1"
	case TK103_2:
		return "tk103-2"
	case TK103_3:
		return "tk103-3"
	case TKnano_1:
		return "tknano-1"
	case TKnano_2:
		return "tknano-2"
	default:
		return "unknown"
	}
}

// IsKnown reports whether at least one frame has classified the connection.
func (d Dialect) IsKnown() bool {
	return d != Unknown
}
