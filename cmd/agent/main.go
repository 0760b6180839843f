package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"gbgym.ai/internal/obscodec"
	"gbgym.ai/internal/protocol"
)

// agent plays random actions against a gymserver.
func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/env", "ws url")
		name     = flag.String("name", "random", "agent name")
		encoding = flag.String("encoding", obscodec.ZSTDU8, "obs encoding (U8 or ZSTD_U8)")
		episodes = flag.Int("episodes", 1, "episodes to play")
		seed     = flag.Int64("seed", 1, "policy seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[agent] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
		ObsEncoding:     *encoding,
	}
	var w protocol.WelcomeMsg
	if err := request(conn, hello, protocol.TypeWelcome, &w); err != nil {
		logger.Fatalf("HELLO: %v", err)
	}
	p := w.Env
	logger.Printf("WELCOME session=%s rom=%q obs=%v actions=%v frame_skip=%d", w.SessionID, p.ROMTitle, p.ObsShape, p.ActionNames, p.FrameSkip)
	obsLen := p.ObsShape[0] * p.ObsShape[1] * p.ObsShape[2]

	rng := rand.New(rand.NewSource(*seed))
	for ep := 0; ep < *episodes; ep++ {
		var o protocol.ObsMsg
		if err := request(conn, protocol.ResetMsg{Type: protocol.TypeReset, ProtocolVersion: protocol.Version}, protocol.TypeObs, &o); err != nil {
			logger.Fatalf("RESET: %v", err)
		}
		for !o.Truncated && !o.Terminated {
			step := protocol.StepMsg{Type: protocol.TypeStep, ProtocolVersion: protocol.Version, Action: rng.Intn(p.Actions)}
			o = protocol.ObsMsg{}
			if err := request(conn, step, protocol.TypeObs, &o); err != nil {
				logger.Fatalf("STEP: %v", err)
			}
			if _, err := obscodec.Decode(o.Obs, p.ObsEncoding, obsLen); err != nil {
				logger.Fatalf("step %d: %v", o.Step, err)
			}
			if o.Step%1000 == 0 {
				logger.Printf("episode %d step %d pos=%v", o.Episode, o.Step, o.Pos)
			}
		}
		if in := o.Info; in != nil {
			logger.Printf("episode %d done: return=%.3f badges=%d levels=%d deaths=%d coords=%d maps=%d moves=%d",
				o.Episode, in.Return, in.Badges, in.MaxLevelSum, in.Deaths, in.SeenCoords, in.SeenMaps, in.Moves)
		}
	}
}

// request sends req and decodes the reply into out, which must be of type
// want. An ERROR reply is returned as an error.
func request(conn *websocket.Conn, req any, want string, out any) error {
	if err := conn.WriteJSON(req); err != nil {
		return err
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return err
	}
	switch base.Type {
	case want:
		return json.Unmarshal(msg, out)
	case protocol.TypeError:
		var em protocol.ErrorMsg
		if err := json.Unmarshal(msg, &em); err != nil {
			return err
		}
		return fmt.Errorf("%s: %s", em.Code, em.Message)
	default:
		return fmt.Errorf("unexpected %s", base.Type)
	}
}
