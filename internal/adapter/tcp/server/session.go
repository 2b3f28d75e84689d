package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"bank-node/internal/adapter/tcp/protocol"
	"bank-node/pkg/apperror"
	"bank-node/pkg/response"

	"github.com/rs/zerolog"
)

const readChunkSize = 1024

// SessionState is the lifecycle position of one client session.
type SessionState int32

const (
	StateOpen SessionState = iota
	StateReading
	StateDispatching
	StateWriting
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateReading:
		return "reading"
	case StateDispatching:
		return "dispatching"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type session struct {
	id     string
	conn   net.Conn
	remote string
	srv    *Server
	log    zerolog.Logger

	state atomic.Int32
	buf   []byte
}

func (s *session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// run reads chunks, answers every complete line in order and returns when
// the client leaves, the read deadline passes or a socket error occurs.
// Server shutdown only stops the accept loop; Close is what cuts a live
// session off.
func (s *session) run(ctx context.Context) {
	defer s.setState(StateClosed)
	s.setState(StateOpen)

	cfg := s.srv.cfg
	chunk := make([]byte, readChunkSize)

	for {
		s.setState(StateReading)
		if cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		}
		n, readErr := s.conn.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
			if !s.drain(ctx) {
				return
			}
		}

		if readErr != nil {
			s.logReadEnd(readErr)
			return
		}
	}
}

// drain serves every complete line in the buffer. It reports false when the
// session must end.
func (s *session) drain(ctx context.Context) bool {
	maxLine := s.srv.cfg.MaxLineBytes

	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		if maxLine > 0 && i > maxLine {
			return s.rejectLongLine()
		}
		line := string(s.buf[:i])
		s.buf = s.buf[i+1:]

		if !s.serveLine(ctx, line) {
			return false
		}
	}

	if maxLine > 0 && len(s.buf) > maxLine {
		return s.rejectLongLine()
	}
	// Release the consumed prefix once the buffer is empty.
	if len(s.buf) == 0 {
		s.buf = s.buf[:0:0]
	}
	return true
}

func (s *session) serveLine(ctx context.Context, raw string) bool {
	line := strings.TrimSpace(raw)
	if line == "" {
		return true
	}

	if s.srv.cfg.AllowShutdownCommand && strings.EqualFold(line, ShutdownDirective) {
		s.log.Warn().Msg("shutdown requested by client")
		s.srv.Shutdown()
		return s.write(ShutdownReply)
	}

	s.setState(StateDispatching)
	reply := s.srv.handler(ctx, &protocol.Request{
		Line:       line,
		SessionID:  s.id,
		RemoteAddr: s.remote,
	})
	return s.write(reply)
}

func (s *session) rejectLongLine() bool {
	s.log.Warn().Int("buffered", len(s.buf)).Msg("command line too long, closing session")
	s.write(apperror.ErrLineTooLong().Message)
	return false
}

func (s *session) write(line string) bool {
	s.setState(StateWriting)
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteTimeout))
	if _, err := s.conn.Write(response.Frame(line)); err != nil {
		s.log.Warn().Err(err).Msg("write response failed")
		return false
	}
	return true
}

func (s *session) logReadEnd(err error) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
		if len(s.buf) > 0 {
			s.log.Debug().Int("discarded", len(s.buf)).Msg("unterminated input at disconnect")
		}
	case errors.As(err, &ne) && ne.Timeout():
		s.log.Info().Dur("read_timeout", s.srv.cfg.ReadTimeout).Msg("session idle timeout")
	case errors.Is(err, net.ErrClosed):
		s.log.Debug().Msg("connection closed")
	default:
		s.log.Warn().Err(err).Msg("read failed")
	}
}
