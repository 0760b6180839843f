package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gbgym.ai/internal/env"
	"gbgym.ai/internal/obscodec"
	"gbgym.ai/internal/protocol"
)

// EnvFactory builds a fresh environment for one connection.
type EnvFactory func() (*env.Env, error)

type Options struct {
	ROMTitle     string
	TuningDigest string
	// Recorder, when set, is attached to every session's env.
	Recorder func(session int64) env.Recorder
}

// Server exposes one env per websocket connection. Requests are served in
// order; every RESET or STEP gets exactly one OBS or ERROR back.
type Server struct {
	factory EnvFactory
	opts    Options
	log     *log.Logger

	upgrader websocket.Upgrader
	sessions atomic.Int64
	active   atomic.Int64

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(factory EnvFactory, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[ws] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Server{
		factory: factory,
		opts:    opts,
		log:     logger,
		conns:   map[*websocket.Conn]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Active is the number of open sessions.
func (s *Server) Active() int64 { return s.active.Load() }

// Close refuses new connections, closes the open ones, and waits until every
// handler has closed its env. http.Server.Shutdown does not wait for
// hijacked connections, so call Close before tearing down recorders.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type session struct {
	id       int64
	env      *env.Env
	encoding string
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.isClosed() {
			http.Error(rw, "server closing", http.StatusServiceUnavailable)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if !s.track(conn) {
			return
		}
		defer s.untrack(conn)

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		s.active.Add(1)
		defer s.active.Add(-1)
		defer func() {
			if err := sess.env.Close(); err != nil {
				s.log.Printf("session %d: close env: %v", sess.id, err)
			}
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		out := make(chan []byte, 4)

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			b, err := json.Marshal(s.handle(sess, msg))
			if err != nil {
				s.log.Printf("session %d: marshal: %v", sess.id, err)
				break
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		cancel()
		<-done
		s.log.Printf("session %d closed after %d episodes", sess.id, sess.env.Episode())
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		closePolicy(conn, "bad HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version && !slices.Contains(hello.SupportedVersions, protocol.Version) {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, fmt.Sprintf("server speaks %s", protocol.Version)))
		closePolicy(conn, "bad protocol_version")
		return nil
	}
	encoding, err := obscodec.Normalize(hello.ObsEncoding)
	if err != nil {
		closePolicy(conn, err.Error())
		return nil
	}
	if hello.AgentName == "" {
		hello.AgentName = "agent"
	}

	e, err := s.factory()
	if err != nil {
		s.log.Printf("env factory: %v", err)
		_ = writeJSON(conn, protocol.NewError(protocol.ErrInternal, "env unavailable"))
		return nil
	}
	id := s.sessions.Add(1)
	if s.opts.Recorder != nil {
		e.SetRecorder(s.opts.Recorder(id))
	}

	spec := e.Spec()
	names := make([]string, spec.Actions)
	for i := range names {
		names[i] = env.Action(i).String()
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       fmt.Sprintf("S%d", id),
		TuningDigest:    s.opts.TuningDigest,
		Env: protocol.EnvParams{
			ObsShape:        [3]int{spec.Obs.H, spec.Obs.W, spec.Obs.C},
			ObsEncoding:     encoding,
			Actions:         spec.Actions,
			ActionNames:     names,
			FrameSkip:       spec.FrameSkip,
			MaxEpisodeSteps: spec.MaxEpisodeSteps,
			ROMTitle:        s.opts.ROMTitle,
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		_ = e.Close()
		return nil
	}
	s.log.Printf("session %d: agent=%s encoding=%s", id, hello.AgentName, encoding)
	return &session{
		id:       id,
		env:      e,
		encoding: encoding,
	}
}

// handle answers one client request.
func (s *Server) handle(sess *session, msg []byte) any {
	base, err := protocol.ValidateClientMessage(msg)
	if err != nil {
		return protocol.NewError(protocol.ErrProtoBadRequest, err.Error())
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewError(protocol.ErrProtoVersion, fmt.Sprintf("unsupported protocol_version %q", base.ProtocolVersion))
	}

	switch base.Type {
	case protocol.TypeReset:
		o, _, err := sess.env.Reset()
		if err != nil {
			return envError(err)
		}
		return s.obsMsg(sess, o, env.StepResult{})

	case protocol.TypeStep:
		var step protocol.StepMsg
		if err := json.Unmarshal(msg, &step); err != nil {
			return protocol.NewError(protocol.ErrProtoBadRequest, err.Error())
		}
		res, err := sess.env.Step(env.Action(step.Action))
		if err != nil {
			return envError(err)
		}
		return s.obsMsg(sess, res.Obs, res)

	default:
		return protocol.NewError(protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected %s", base.Type))
	}
}

func (s *Server) obsMsg(sess *session, o []byte, res env.StepResult) any {
	payload, err := obscodec.Encode(o, sess.encoding)
	if err != nil {
		return protocol.NewError(protocol.ErrInternal, err.Error())
	}
	pos := sess.env.Position()
	m := protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Episode:         sess.env.Episode(),
		Step:            sess.env.Steps(),
		Obs:             payload,
		Reward:          res.Reward,
		Terminated:      res.Terminated,
		Truncated:       res.Truncated,
		Pos:             [3]int{pos.Row, pos.Col, pos.Map},
	}
	if res.Info != nil {
		in := res.Info
		m.Info = &protocol.EpisodeInfo{
			Badges:      in.Badges,
			PartySize:   in.PartySize,
			MaxLevelSum: in.MaxLevelSum,
			Deaths:      in.Deaths,
			SeenCoords:  in.SeenCoords,
			SeenMaps:    in.SeenMaps,
			Moves:       in.Moves,
			Steps:       in.Steps,
			Return:      in.Return,
		}
	}
	return m
}

func envError(err error) protocol.ErrorMsg {
	switch {
	case errors.Is(err, env.ErrBadAction):
		return protocol.NewError(protocol.ErrBadAction, err.Error())
	case errors.Is(err, env.ErrNotRunning):
		return protocol.NewError(protocol.ErrNotRunning, err.Error())
	default:
		return protocol.NewError(protocol.ErrInternal, err.Error())
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
