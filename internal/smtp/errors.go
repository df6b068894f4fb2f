package smtp

import (
	"errors"
	"fmt"
)

// ErrInvalidUTF8 is returned when a received line is not valid UTF-8 text.
var ErrInvalidUTF8 = errors.New("smtp: received bytes are not valid UTF-8")

// Kind classifies a ProtocolError.
type Kind int

const (
	// KindSequence is a known command sent in a phase that does not accept it.
	KindSequence Kind = iota + 1

	// KindSyntax is a command whose argument is missing or malformed.
	KindSyntax

	// KindUnknown is a verb the server does not recognize.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "bad sequence"
	case KindSyntax:
		return "syntax error"
	case KindUnknown:
		return "unrecognized command"
	default:
		return "protocol error"
	}
}

// ProtocolError reports a line the state machine refused. The session
// state is left as it was before the line.
type ProtocolError struct {
	Kind  Kind
	Line  string
	Phase Phase
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("smtp: %s in phase %s: %q", e.Kind, e.Phase, e.Line)
}

// Reply returns the error reply matching the failure kind.
func (e *ProtocolError) Reply() Reply {
	switch e.Kind {
	case KindSyntax:
		return "501 5.5.4 Syntax error in parameters or arguments\r\n"
	case KindUnknown:
		return "500 5.5.2 Unrecognized command\r\n"
	default:
		return "503 5.5.1 Bad sequence of commands\r\n"
	}
}
