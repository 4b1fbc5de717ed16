package protocol

import "encoding/json"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	AgentName       string            `json:"agent_name"`
	Team            int               `json:"team,omitempty"`
	Player          bool              `json:"player,omitempty"`
	BuildSpeed      float32           `json:"build_speed,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id,omitempty"`
	AgentID         string         `json:"agent_id"`
	ResumeToken     string         `json:"resume_token"`
	Team            int            `json:"team"`
	Tick            uint64         `json:"tick"`
	WorldParams     WorldParams    `json:"world_params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type WorldParams struct {
	TickRateHz int `json:"tick_rate_hz"`
	Width      int `json:"width"`
	Height     int `json:"height"`
}

type CatalogDigests struct {
	BlockPalette DigestRef `json:"block_palette"`
	ItemPalette  DigestRef `json:"item_palette"`
	BlocksDigest string    `json:"blocks_digest"`
	ItemsDigest  string    `json:"items_digest"`
	TuningDigest string    `json:"tuning_digest,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// Order types.
const (
	OrderPlace   = "PLACE"
	OrderBreak   = "BREAK"
	OrderCancel  = "CANCEL"
	OrderFeed    = "FEED"
	OrderPower   = "POWER"
	OrderDestroy = "DESTROY"
)

// ORDER (client -> server)
type OrderMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ID              string     `json:"id,omitempty"`
	Tick            uint64     `json:"tick,omitempty"`
	AgentID         string     `json:"agent_id,omitempty"`
	Orders          []OrderReq `json:"orders"`
}

type OrderReq struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Pos      [2]int          `json:"pos"`
	Block    string          `json:"block,omitempty"`
	Rotation uint8           `json:"rotation,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
	Item     string          `json:"item,omitempty"`
	Count    int             `json:"count,omitempty"`
	Power    float32         `json:"power,omitempty"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// CALL (server -> observer): one replicated procedure call.
type CallMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Seq             uint64          `json:"seq"`
	Tick            uint64          `json:"tick"`
	Name            string          `json:"name"`
	Args            json.RawMessage `json:"args,omitempty"`
}

type Event map[string]interface{}

// EVENT (server -> client)
type EventMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Events          []Event `json:"events"`
}
