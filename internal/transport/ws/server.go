package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"factoryforge.io/internal/protocol"
	"factoryforge.io/internal/sim/model"
	"factoryforge.io/internal/sim/tuning"
	"factoryforge.io/internal/sim/world"
)

// outBuffer holds calls and events between world ticks and the socket writer.
const outBuffer = 256

type Server struct {
	world  *world.World
	log    *log.Logger
	limits tuning.RateLimits

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	s := &Server{
		world:  w,
		log:    logger,
		limits: tuning.Defaults().RateLimits,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// SetRateLimits bounds how fast one connection may submit ORDER messages.
func (s *Server) SetRateLimits(l tuning.RateLimits) {
	if l.OrdersPerSecond > 0 && l.OrderBurst > 0 {
		s.limits = l
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		agentID, out := s.handshake(conn)
		if agentID == "" {
			return
		}
		if s.log != nil {
			s.log.Printf("agent %s connected from %s", agentID, r.RemoteAddr)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// The reader loop queues ACKs here; one goroutine owns all socket writes.
		acks := make(chan []byte, 64)

		go func() {
			for {
				var b []byte
				var ok bool
				select {
				case <-ctx.Done():
					return
				case b, ok = <-out:
					if !ok {
						return
					}
				case b = <-acks:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		limiter := rate.NewLimiter(rate.Limit(s.limits.OrdersPerSecond), s.limits.OrderBurst)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			ack, env, ok := s.intake(agentID, msg, limiter)
			if ok {
				s.world.Inbox() <- env
			}
			if ack != nil {
				b, err := json.Marshal(ack)
				if err != nil {
					continue
				}
				select {
				case acks <- b:
				case <-ctx.Done():
				}
			}
		}

		s.world.Leave() <- agentID
		if s.log != nil {
			s.log.Printf("agent %s disconnected", agentID)
		}
	}
}

// intake validates one client message. It returns the ACK to send (nil for
// ignored messages) and, when accepted, the envelope for the world inbox.
func (s *Server) intake(agentID string, msg []byte, limiter *rate.Limiter) (*protocol.AckMsg, world.OrderEnvelope, bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeOrder {
		return nil, world.OrderEnvelope{}, false
	}
	var order protocol.OrderMsg
	if err := json.Unmarshal(msg, &order); err != nil {
		return nack("", protocol.ErrProtoBadRequest, "malformed ORDER"), world.OrderEnvelope{}, false
	}
	if order.ProtocolVersion != protocol.Version {
		return nack(order.ID, protocol.ErrProtoBadRequest, "bad protocol_version"), world.OrderEnvelope{}, false
	}
	if len(order.Orders) == 0 {
		return nack(order.ID, protocol.ErrBadRequest, "no orders"), world.OrderEnvelope{}, false
	}
	for _, o := range order.Orders {
		if strings.TrimSpace(o.ID) == "" {
			return nack(order.ID, protocol.ErrBadRequest, "order without id"), world.OrderEnvelope{}, false
		}
	}
	if !limiter.Allow() {
		return nack(order.ID, protocol.ErrRateLimit, "too many orders"), world.OrderEnvelope{}, false
	}
	ack := &protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          order.ID,
		Accepted:        true,
		ServerTick:      s.world.CurrentTick(),
	}
	return ack, world.OrderEnvelope{AgentID: agentID, Order: order}, true
}

func nack(ref, code, message string) *protocol.AckMsg {
	return &protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          ref,
		Code:            code,
		Message:         message,
	}
}

func (s *Server) handshake(conn *websocket.Conn) (agentID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.Team < 0 || hello.Team > 255 {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad team"), time.Now().Add(time.Second))
		return "", nil
	}
	out = make(chan []byte, outBuffer)

	// Optional: resume an existing agent (reconnect).
	resumeToken := ""
	if hello.Auth != nil {
		resumeToken = strings.TrimSpace(hello.Auth.Token)
	}

	var resp world.JoinResponse
	if resumeToken != "" {
		respCh := make(chan world.JoinResponse, 1)
		s.world.Attach() <- world.AttachRequest{
			ResumeToken: resumeToken,
			Out:         out,
			Resp:        respCh,
		}
		resp = <-respCh
	}
	if resp.Welcome.AgentID == "" {
		respCh := make(chan world.JoinResponse, 1)
		s.world.Join() <- world.JoinRequest{
			Name:       hello.AgentName,
			Team:       model.Team(hello.Team),
			Player:     hello.Player,
			BuildSpeed: hello.BuildSpeed,
			MaxQueue:   hello.Capabilities.MaxQueue,
			Out:        out,
			Resp:       respCh,
		}
		resp = <-respCh
	}

	resp.Welcome.SessionID = uuid.NewString()
	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil
	}
	return resp.Welcome.AgentID, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
