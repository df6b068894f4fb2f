package smtp

import (
	"strings"
	"unicode"

	"github.com/shineum/haxmail/internal/mail"
)

// Phase is the stage of a mail transaction within a session.
type Phase int

const (
	// PhaseFresh is the initial phase; only HELO or EHLO advance it.
	PhaseFresh Phase = iota

	// PhaseGreeted follows a successful greeting; MAIL starts a transaction.
	PhaseGreeted

	// PhaseRecipients has a sender and collects RCPT recipients.
	PhaseRecipients

	// PhaseData appends every line to the body until a lone dot.
	PhaseData

	// PhaseCompleted holds a finished message. MAIL starts the next one.
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseFresh:
		return "Fresh"
	case PhaseGreeted:
		return "Greeted"
	case PhaseRecipients:
		return "ReceivingRecipients"
	case PhaseData:
		return "ReceivingData"
	case PhaseCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// State is a session phase together with the message it carries.
// PhaseRecipients, PhaseData and PhaseCompleted always carry a message;
// the other phases never do. The zero value is the Fresh state.
//
// A State is never modified in place: Step returns a new one.
type State struct {
	Phase Phase
	msg   *mail.Message
}

// Message returns a copy of the carried message, if any.
func (s State) Message() (mail.Message, bool) {
	if s.msg == nil {
		return mail.Message{}, false
	}
	m := s.msg.Clone()
	if s.Phase == PhaseData {
		// Body lines are stored newline-terminated while data is open.
		m.Body = strings.TrimSuffix(m.Body, "\n")
	}
	return m, true
}

func withMessage(p Phase, m mail.Message) State {
	return State{Phase: p, msg: &m}
}

// knownVerbs are the commands Step understands in some phase.
var knownVerbs = map[string]bool{
	"HELO": true, "EHLO": true, "MAIL": true, "RCPT": true, "DATA": true,
	"RSET": true, "NOOP": true, "HELP": true, "INFO": true, "VRFY": true,
	"EXPN": true, "AUTH": true, "QUIT": true,
}

// Machine is the SMTP session transition function. It performs no I/O and
// holds no per-session data, so one Machine may serve any number of
// sessions concurrently.
type Machine struct {
	domain string
}

// NewMachine returns a Machine announcing domain in its EHLO banner.
func NewMachine(domain string) *Machine {
	return &Machine{domain: domain}
}

// Step consumes one unit of protocol text in state st and returns the next
// state and the reply to send. Outside the data phase the unit is a command
// line; inside it, the unit is body content and may hold several lines.
//
// On error the returned state is st unchanged and the error is a
// *ProtocolError.
func (m *Machine) Step(st State, line string) (State, Reply, error) {
	if st.Phase == PhaseData {
		return m.stepData(st, line)
	}

	verb, arg := parseCommand(trimEOL(line))
	if verb == "" {
		return st, ReplyNone, &ProtocolError{Kind: KindSyntax, Line: line, Phase: st.Phase}
	}

	// Accepted in every phase.
	switch verb {
	case "NOOP", "HELP", "INFO", "VRFY", "EXPN":
		return st, ReplyOK, nil
	case "RSET":
		return State{}, ReplyOK, nil
	case "AUTH":
		return st, ReplyAuthOK, nil
	case "QUIT":
		return st, ReplyBye, nil
	}

	switch st.Phase {
	case PhaseFresh:
		switch verb {
		case "EHLO":
			client := arg
			if client == "" {
				client = m.domain
			}
			return State{Phase: PhaseGreeted}, ehloReply(m.domain, client), nil
		case "HELO":
			return State{Phase: PhaseGreeted}, ReplyOK, nil
		}

	case PhaseGreeted, PhaseCompleted:
		if verb == "MAIL" {
			sender, ok := pathArg(arg, "FROM:")
			if !ok {
				return st, ReplyNone, &ProtocolError{Kind: KindSyntax, Line: line, Phase: st.Phase}
			}
			return withMessage(PhaseRecipients, mail.Message{Sender: sender}), ReplyOK, nil
		}

	case PhaseRecipients:
		switch verb {
		case "RCPT":
			rcpt, ok := pathArg(arg, "TO:")
			if !ok {
				return st, ReplyNone, &ProtocolError{Kind: KindSyntax, Line: line, Phase: st.Phase}
			}
			msg := st.msg.Clone()
			msg.Recipients = append(msg.Recipients, rcpt)
			return withMessage(PhaseRecipients, msg), ReplyOK, nil
		case "DATA":
			if len(st.msg.Recipients) == 0 {
				break
			}
			return withMessage(PhaseData, st.msg.Clone()), ReplySendData, nil
		}
	}

	kind := KindSequence
	if !knownVerbs[verb] {
		kind = KindUnknown
	}
	return st, ReplyNone, &ProtocolError{Kind: kind, Line: line, Phase: st.Phase}
}

// stepData appends body content. A lone dot ends the message and is not
// stored; a line of exactly QUIT ends it without the terminator.
func (m *Machine) stepData(st State, unit string) (State, Reply, error) {
	if strings.EqualFold(trimEOL(unit), "QUIT") {
		msg, _ := st.Message()
		return withMessage(PhaseCompleted, msg), ReplyBye, nil
	}

	msg := st.msg.Clone()
	for _, l := range splitLines(unit) {
		if l == "." {
			msg.Body = strings.TrimSuffix(msg.Body, "\n")
			return withMessage(PhaseCompleted, msg), ReplyOK, nil
		}
		// Transparency: a leading dot was doubled by the client.
		if strings.HasPrefix(l, "..") {
			l = l[1:]
		}
		msg.Body += l + "\n"
	}
	return withMessage(PhaseData, msg), ReplyNone, nil
}

// parseCommand splits an SMTP command line at its first run of whitespace
// into the upper-cased verb and the trimmed remainder.
func parseCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return strings.ToUpper(line), ""
	}
	return strings.ToUpper(line[:i]), strings.TrimSpace(line[i:])
}

// pathArg strips a case-insensitive prefix such as "FROM:" and returns the
// first word after it, unparsed. Trailing ESMTP parameters are dropped.
func pathArg(arg, prefix string) (string, bool) {
	if len(arg) < len(prefix) || !strings.EqualFold(arg[:len(prefix)], prefix) {
		return "", false
	}
	fields := strings.Fields(arg[len(prefix):])
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// trimEOL removes one trailing LF or CRLF.
func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// splitLines breaks a body unit into lines, dropping line endings. A unit
// ending in a line ending does not produce a trailing empty line.
func splitLines(unit string) []string {
	lines := strings.Split(strings.TrimSuffix(unit, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
