package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/model"
)

const maxAgentName = 64

func normalizeAgentName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "agent"
	}
	if len(name) > maxAgentName {
		name = name[:maxAgentName]
	}
	return name
}

func newResumeToken() string {
	return "resume_" + uuid.NewString()
}

func (w *World) tuningDigest() string {
	b, _ := json.Marshal(struct {
		TickRateHz   int            `json:"tick_rate_hz"`
		CoreCapacity int            `json:"core_capacity"`
		StarterItems map[string]int `json:"starter_items"`
		Rules        any            `json:"rules"`
	}{w.cfg.TickRateHz, w.cfg.CoreCapacity, w.cfg.StarterItems, w.cfg.Rules})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (w *World) buildWelcome(a *Agent) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		AgentID:         a.ID,
		ResumeToken:     a.ResumeToken,
		Team:            int(a.Team),
		Tick:            w.tick.Load(),
		WorldParams: protocol.WorldParams{
			TickRateHz: w.cfg.TickRateHz,
			Width:      w.cfg.Width,
			Height:     w.cfg.Height,
		},
		Catalogs: protocol.CatalogDigests{
			BlockPalette: protocol.DigestRef{Digest: w.catalogs.Blocks.PaletteDigest, Count: len(w.catalogs.Blocks.Palette)},
			ItemPalette:  protocol.DigestRef{Digest: w.catalogs.Items.PaletteDigest, Count: len(w.catalogs.Items.Palette)},
			BlocksDigest: w.catalogs.Blocks.DefsDigest,
			ItemsDigest:  w.catalogs.Items.DefsDigest,
			TuningDigest: w.tuningDigest(),
		},
	}
}

func (w *World) joinAgent(req JoinRequest) (JoinResponse, RecordedJoin) {
	idNum := w.nextAgentNum.Add(1)
	a := &Agent{
		ID:          fmt.Sprintf("A%d", idNum),
		Name:        normalizeAgentName(req.Name),
		Team:        req.Team,
		Player:      req.Player,
		Seq:         idNum,
		BuildSpeed:  req.BuildSpeed,
		MaxQueue:    req.MaxQueue,
		ResumeToken: newResumeToken(),
	}
	if a.BuildSpeed <= 0 {
		a.BuildSpeed = 1
	}
	if a.MaxQueue <= 0 || a.MaxQueue > w.cfg.MaxQueue {
		a.MaxQueue = w.cfg.MaxQueue
	}
	w.agents[a.ID] = a
	w.coreFor(a.Team)
	if req.Out != nil {
		w.clients[a.ID] = &clientState{Out: req.Out}
	}
	rec := RecordedJoin{
		AgentID:    a.ID,
		Name:       a.Name,
		Team:       a.Team,
		Player:     a.Player,
		BuildSpeed: a.BuildSpeed,
		MaxQueue:   a.MaxQueue,
	}
	return JoinResponse{Welcome: w.buildWelcome(a)}, rec
}

// JoinRequestFor rebuilds the join a tick log recorded, for replays.
func JoinRequestFor(r RecordedJoin) JoinRequest {
	return JoinRequest{Name: r.Name, Team: r.Team, Player: r.Player, BuildSpeed: r.BuildSpeed, MaxQueue: r.MaxQueue}
}

func (w *World) handleAttach(req AttachRequest) {
	token := strings.TrimSpace(req.ResumeToken)
	var found *Agent
	if token != "" && req.Out != nil {
		for _, a := range w.sortedAgents() {
			if a.ResumeToken == token {
				found = a
				break
			}
		}
	}
	if found == nil {
		if req.Resp != nil {
			req.Resp <- JoinResponse{}
		}
		return
	}
	// Attaching a client does not affect simulation determinism.
	w.clients[found.ID] = &clientState{Out: req.Out}
	found.ResumeToken = newResumeToken()
	if req.Resp != nil {
		req.Resp <- JoinResponse{Welcome: w.buildWelcome(found)}
	}
}

// handleLeave detaches the client. The agent stays in the world so it can
// resume, and its plans keep running.
func (w *World) handleLeave(agentID string) {
	delete(w.clients, agentID)
}

// Agent returns a copy of an agent's public state, for tests and tools.
func (w *World) Agent(id string) (AgentView, bool) {
	a := w.agents[id]
	if a == nil {
		return AgentView{}, false
	}
	return AgentView{ID: a.ID, Name: a.Name, Team: a.Team, Player: a.Player, Plans: len(a.Plans)}, true
}

type AgentView struct {
	ID     string
	Name   string
	Team   model.Team
	Player bool
	Plans  int
}
