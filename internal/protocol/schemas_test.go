package protocol_test

import (
	"encoding/json"
	"strings"
	"testing"

	"gbgym.ai/internal/protocol"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestSchemas_ValidateSamples(t *testing.T) {
	samples := map[string]any{
		protocol.TypeHello: protocol.HelloMsg{
			Type:            protocol.TypeHello,
			ProtocolVersion: protocol.Version,
			AgentName:       "random-agent",
			ObsEncoding:     "ZSTD_U8",
		},
		protocol.TypeWelcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       "S1",
			TuningDigest:    "deadbeef",
			Env: protocol.EnvParams{
				ObsShape:        [3]int{72, 80, 4},
				ObsEncoding:     "U8",
				Actions:         8,
				ActionNames:     []string{"DOWN", "LEFT", "RIGHT", "UP", "A", "B", "START", "SELECT"},
				FrameSkip:       24,
				MaxEpisodeSteps: 20480,
				ROMTitle:        "POKEMON RED",
			},
		},
		protocol.TypeReset: protocol.ResetMsg{Type: protocol.TypeReset, ProtocolVersion: protocol.Version},
		protocol.TypeStep:  protocol.StepMsg{Type: protocol.TypeStep, ProtocolVersion: protocol.Version, Action: 3},
		protocol.TypeObs: protocol.ObsMsg{
			Type:            protocol.TypeObs,
			ProtocolVersion: protocol.Version,
			Episode:         2,
			Step:            20480,
			Obs:             "AAEC",
			Reward:          0.08,
			Truncated:       true,
			Pos:             [3]int{4, 5, 12},
			Info: &protocol.EpisodeInfo{
				Badges: 1, PartySize: 2, MaxLevelSum: 14, SeenCoords: 300, SeenMaps: 4, Moves: 6, Steps: 20480, Return: 31.5,
			},
		},
		protocol.TypeError: protocol.NewError(protocol.ErrBadAction, "action 9 out of range"),
	}
	for typ, v := range samples {
		if err := protocol.Validate(typ, mustJSON(t, v)); err != nil {
			t.Fatalf("%s: validate: %v", typ, err)
		}
	}
}

func TestSchemas_RejectBadClientMessages(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"step without action", `{"type":"STEP","protocol_version":"1.0"}`},
		{"step with string action", `{"type":"STEP","protocol_version":"1.0","action":"UP"}`},
		{"step with extra field", `{"type":"STEP","protocol_version":"1.0","action":1,"seed":3}`},
		{"hello without agent", `{"type":"HELLO","protocol_version":"1.0"}`},
		{"hello with unknown encoding", `{"type":"HELLO","protocol_version":"1.0","agent_name":"a","obs_encoding":"PNG"}`},
		{"reset with seed", `{"type":"RESET","protocol_version":"1.0","seed":1}`},
		{"server type from client", `{"type":"OBS","protocol_version":"1.0"}`},
		{"not json", `{"type":`},
	}
	for _, tc := range cases {
		if _, err := protocol.ValidateClientMessage([]byte(tc.raw)); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}

	base, err := protocol.ValidateClientMessage([]byte(`{"type":"STEP","protocol_version":"1.0","action":7}`))
	if err != nil {
		t.Fatalf("valid STEP rejected: %v", err)
	}
	if base.Type != protocol.TypeStep || base.ProtocolVersion != protocol.Version {
		t.Fatalf("base: %+v", base)
	}
}

func TestSchemas_SourceAndUnknownType(t *testing.T) {
	src, err := protocol.SchemaSource(protocol.TypeObs)
	if err != nil {
		t.Fatalf("SchemaSource: %v", err)
	}
	if !strings.Contains(string(src), `"title": "OBS"`) {
		t.Fatalf("unexpected schema source: %s", src)
	}
	if _, err := protocol.Schema("ACT"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if _, err := protocol.SchemaSource("ACT"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
