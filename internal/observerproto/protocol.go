package observerproto

import "factoryforge.io/internal/protocol"

// Version is the observer protocol version (separate from the agent WS protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeBootstrap = "BOOTSTRAP"
	TypeTick      = "TICK"
)

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Events asks for per-tick build events in TICK messages.
	Events bool `json:"events,omitempty"`
}

// BootstrapResponse is the state an observer mirrors from. It is sent once
// after SUBSCRIBE and is also served by GET /admin/v1/observer/bootstrap.
// CallSeq is the sequence of the last call already reflected in Occupants.
type BootstrapResponse struct {
	Type            string      `json:"type,omitempty"`
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	CallSeq         uint64      `json:"call_seq"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    []string    `json:"block_palette"`
	BlocksDigest    string      `json:"blocks_digest"`
	Agents          []AgentInfo `json:"agents,omitempty"`
	Occupants       []Occupant  `json:"occupants"`
}

type WorldParams struct {
	TickRateHz int `json:"tick_rate_hz"`
	Width      int `json:"width"`
	Height     int `json:"height"`
}

type AgentInfo struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Team    int    `json:"team"`
	Player  bool   `json:"player"`
}

// Occupant is one building or construction site, addressed by its anchor.
type Occupant struct {
	Pos      [2]int  `json:"pos"`
	Block    int16   `json:"block"`
	Team     int     `json:"team"`
	Rotation uint8   `json:"rotation"`
	Health   float32 `json:"health"`
	Config   []byte  `json:"config,omitempty"`
	// Overwrote lists buildings a finished overwrite block replaced.
	Overwrote []PriorRef `json:"overwrote,omitempty"`
	Site      *SiteRef   `json:"site,omitempty"`
}

type PriorRef struct {
	Pos   [2]int `json:"pos"`
	Block int16  `json:"block"`
}

type SiteRef struct {
	Size     int     `json:"size"`
	Target   int16   `json:"target"`
	Previous int16   `json:"previous"`
	Breaking bool    `json:"breaking"`
	Progress float32 `json:"progress"`
	// Prior lists the buildings the site replaced.
	Prior []PriorRef `json:"prior,omitempty"`
}

// Server -> Client. Sent every tick after that tick's CALL messages.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	CallSeq         uint64 `json:"call_seq"`
	Digest          string `json:"digest"`
	OccupantDigest  string `json:"occupant_digest"`

	Joins    []AgentInfo      `json:"joins,omitempty"`
	Leaves   []string         `json:"leaves,omitempty"`
	Orders   int              `json:"orders,omitempty"`
	Sites    []SiteProgress   `json:"sites,omitempty"`
	Reactors []ReactorState   `json:"reactors,omitempty"`
	Events   []protocol.Event `json:"events,omitempty"`
}

type SiteProgress struct {
	Pos      [2]int  `json:"pos"`
	Progress float32 `json:"progress"`
	Breaking bool    `json:"breaking"`
}

type ReactorState struct {
	Pos           [2]int  `json:"pos"`
	Warmup        float32 `json:"warmup"`
	TotalProgress float32 `json:"total_progress"`
	Efficiency    float32 `json:"efficiency"`
	NetPower      float32 `json:"net_power"`
}
