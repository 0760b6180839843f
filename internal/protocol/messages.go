package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type              string   `json:"type"`
	ProtocolVersion   string   `json:"protocol_version"`
	SupportedVersions []string `json:"supported_versions,omitempty"`
	AgentName         string   `json:"agent_name"`
	// ObsEncoding selects how OBS payloads are packed; empty means U8.
	ObsEncoding string `json:"obs_encoding,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	SessionID       string    `json:"session_id"`
	Env             EnvParams `json:"env"`
	TuningDigest    string    `json:"tuning_digest"`
}

type EnvParams struct {
	// ObsShape is [h, w, c]; observations are row-major uint8.
	ObsShape        [3]int   `json:"obs_shape"`
	ObsEncoding     string   `json:"obs_encoding"`
	Actions         int      `json:"actions"`
	ActionNames     []string `json:"action_names"`
	FrameSkip       int      `json:"frame_skip"`
	MaxEpisodeSteps int      `json:"max_episode_steps"`
	ROMTitle        string   `json:"rom_title,omitempty"`
}

// RESET (client -> server)
type ResetMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// STEP (client -> server)
type StepMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Action          int    `json:"action"`
}

// OBS (server -> client): answer to RESET (step 0) and to every STEP.
type ObsMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Episode         int          `json:"episode"`
	Step            int          `json:"step"`
	Obs             string       `json:"obs"`
	Reward          float64      `json:"reward"`
	Terminated      bool         `json:"terminated"`
	Truncated       bool         `json:"truncated"`
	Pos             [3]int       `json:"pos"`
	Info            *EpisodeInfo `json:"info,omitempty"`
}

type EpisodeInfo struct {
	Badges      int     `json:"badges"`
	PartySize   int     `json:"party_size"`
	MaxLevelSum int     `json:"max_level_sum"`
	Deaths      int     `json:"deaths"`
	SeenCoords  int     `json:"seen_coords"`
	SeenMaps    int     `json:"seen_maps"`
	Moves       int     `json:"moves_obtained"`
	Steps       int     `json:"steps"`
	Return      float64 `json:"return"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
