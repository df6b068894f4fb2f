package smtp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shineum/haxmail/internal/mail"
	"github.com/shineum/haxmail/internal/parser"
	"github.com/shineum/haxmail/internal/store"
)

// storeTimeout bounds the handoff of one message to the store.
const storeTimeout = 30 * time.Second

// captured is a message waiting for handoff at session end.
type captured struct {
	msg     mail.Message
	partial bool
}

// Session drives one SMTP connection: it frames lines, feeds them to the
// state machine, writes replies, and stores the messages it collected once
// the connection is done. A Session is used by a single goroutine.
type Session struct {
	conn        net.Conn
	reader      *bufio.Reader
	writer      *bufio.Writer
	machine     *Machine
	state       State
	store       store.Store
	domain      string
	idleTimeout time.Duration
	logger      *slog.Logger

	// now stamps records at handoff.
	now func() time.Time

	messages []captured
}

// NewSession creates a new SMTP session for the given connection.
// An idleTimeout of zero disables the per-line read deadline.
func NewSession(conn net.Conn, st store.Store, domain string, idleTimeout time.Duration) *Session {
	return &Session{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		writer:      bufio.NewWriter(conn),
		machine:     NewMachine(domain),
		store:       st,
		domain:      domain,
		idleTimeout: idleTimeout,
		logger:      slog.With("remote", conn.RemoteAddr().String()),
		now:         time.Now,
	}
}

// Handle runs the session until the peer quits, disconnects, or an error
// ends it, then closes the connection and hands every captured message to
// the store.
func (s *Session) Handle(ctx context.Context) {
	s.logger.Debug("connection accepted")

	err := s.serve(ctx)
	s.conn.Close()

	switch {
	case err == nil:
		s.logger.Debug("connection closed")
	case errors.Is(err, context.Canceled):
		s.logger.Info("connection closed by shutdown")
	default:
		var perr *ProtocolError
		if errors.As(err, &perr) {
			s.logger.Warn("protocol error, closing connection",
				"kind", perr.Kind.String(),
				"phase", perr.Phase.String(),
				"line", perr.Line,
			)
		} else {
			s.logger.Warn("connection error", "error", err)
		}
	}

	s.persist(context.WithoutCancel(ctx))
}

// serve runs the read loop. It returns nil when the session ended
// normally with QUIT or EOF.
func (s *Session) serve(ctx context.Context) error {
	if err := s.writeReply(greeting(s.domain)); err != nil {
		return err
	}

	// Unblock a pending read when the server shuts down.
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		if s.idleTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
				return fmt.Errorf("failed to set read deadline: %w", err)
			}
		}

		if ctx.Err() != nil {
			s.writeReply(ReplyShutdown)
			return ctx.Err()
		}

		line, err := s.reader.ReadString('\n')
		if line != "" && ctx.Err() == nil {
			done, herr := s.handleLine(line)
			if herr != nil {
				return herr
			}
			if done {
				return nil
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				s.writeReply(ReplyShutdown)
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				// The peer went away: behave as if it had sent QUIT so
				// that an open message is still captured.
				s.step("QUIT")
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
	}
}

// handleLine feeds one framed line to the state machine and writes the
// reply. It reports whether the session is over.
func (s *Session) handleLine(line string) (bool, error) {
	if !utf8.ValidString(line) {
		return true, ErrInvalidUTF8
	}

	inData := s.state.Phase == PhaseData
	if !inData {
		if strings.TrimSpace(line) == "" {
			return false, nil
		}
		s.logCommand(line)
	}

	reply, err := s.step(line)
	if err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			s.writeReply(perr.Reply())
		}
		return true, err
	}

	if reply != ReplyNone {
		if err := s.writeReply(reply); err != nil {
			return true, err
		}
	}
	return reply == ReplyBye, nil
}

// step advances the state machine and queues a message when it completes.
// A message completed by a terminator is whole; one completed by QUIT
// during the data phase is partial.
func (s *Session) step(line string) (Reply, error) {
	prev := s.state
	next, reply, err := s.machine.Step(prev, line)
	if err != nil {
		return ReplyNone, err
	}
	s.state = next

	if prev.Phase == PhaseData && next.Phase == PhaseCompleted {
		msg, _ := next.Message()
		s.messages = append(s.messages, captured{msg: msg, partial: reply != ReplyOK})
		s.logger.Info("message received",
			"sender", msg.Sender,
			"recipients", len(msg.Recipients),
			"bytes", len(msg.Body),
		)
	}
	return reply, nil
}

// logCommand logs a command line at debug level. AUTH lines are reduced
// to the mechanism and offered identity.
func (s *Session) logCommand(line string) {
	if !s.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	verb, arg := parseCommand(trimEOL(line))
	if verb == "AUTH" {
		a := parseAuth(arg)
		s.logger.Debug("auth accepted",
			"mechanism", a.Mechanism,
			"identity", a.Identity,
		)
		return
	}
	s.logger.Debug("command",
		"verb", verb,
		"arg", arg,
		"phase", s.state.Phase.String(),
	)
}

// persist hands every captured message to the store, including one left
// open in the data phase. Store failures are logged; the connection is
// already closed.
func (s *Session) persist(ctx context.Context) {
	if s.state.Phase == PhaseData {
		msg, _ := s.state.Message()
		s.messages = append(s.messages, captured{msg: msg, partial: true})
	}

	for _, c := range s.messages {
		rec := mail.NewRecord(c.msg, s.now(), c.partial)
		// Summarize may return parsed headers along with a body error.
		summary, err := parser.Summarize(c.msg.Body)
		if err != nil {
			s.logger.Debug("incomplete header summary", "message_id", rec.ID, "error", err)
		}
		if summary != (mail.Summary{}) {
			rec.Summary = summary
		}

		storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		err = s.store.Store(storeCtx, rec)
		cancel()

		if err != nil {
			s.logger.Error("failed to store message",
				"store", s.store.Name(),
				"message_id", rec.ID,
				"error", err,
			)
			continue
		}
		s.logger.Info("message stored",
			"store", s.store.Name(),
			"message_id", rec.ID,
			"partial", rec.Partial,
		)
	}
	s.messages = nil
}

// writeReply writes a reply and flushes it to the peer.
func (s *Session) writeReply(r Reply) error {
	if _, err := s.writer.WriteString(string(r)); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	return nil
}
