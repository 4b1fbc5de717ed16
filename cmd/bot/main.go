package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"factoryforge.io/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "agent name")
		team  = flag.Int("team", 1, "team id")
		block = flag.String("block", "COPPER_WALL", "block to build")
		row   = flag.Int("row", 4, "row the bot builds along")
		every = flag.Duration("every", 2*time.Second, "order interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
		Team:            *team,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	msgs := make(chan []byte, 64)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- msg
		}
	}()

	b := &builder{block: *block, row: *row}
	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if b.width == 0 {
				continue
			}
			if err := conn.WriteJSON(b.next()); err != nil {
				logger.Printf("send ORDER: %v", err)
				return
			}
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			handle(logger, b, msg)
		}
	}
}

func handle(logger *log.Logger, b *builder, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		b.width = w.WorldParams.Width
		logger.Printf("WELCOME agent_id=%s team=%d size=%dx%d", w.AgentID, w.Team, w.WorldParams.Width, w.WorldParams.Height)
	case protocol.TypeAck:
		var a protocol.AckMsg
		if err := json.Unmarshal(msg, &a); err == nil && !a.Accepted {
			logger.Printf("NACK %s %s: %s", a.AckFor, a.Code, a.Message)
			if protocol.Retryable(a.Code) {
				b.requeue(a.AckFor)
			}
		}
	case protocol.TypeEvent:
		var ev protocol.EventMsg
		if err := json.Unmarshal(msg, &ev); err != nil {
			return
		}
		for _, e := range ev.Events {
			switch e["type"] {
			case "ORDER_RESULT":
				ref, _ := e["ref"].(string)
				if e["ok"] == true {
					delete(b.sent, ref)
					continue
				}
				code, _ := e["code"].(string)
				logger.Printf("order %s rejected: %s", ref, code)
				if protocol.Retryable(code) {
					b.requeue(ref)
				} else {
					delete(b.sent, ref)
				}
			case "BUILD_END":
				logger.Printf("tick=%d build end %v", ev.Tick, e)
			}
		}
	}
}

// builder walks along one row placing blocks; every fourth new order breaks
// the block two cells back. Orders rejected with a retryable code are sent
// again before anything new.
type builder struct {
	block string
	row   int
	width int
	n     int
	x     int

	seq   int
	sent  map[string]protocol.OrderReq
	retry []protocol.OrderReq
}

func (b *builder) requeue(ref string) {
	req, ok := b.sent[ref]
	if !ok {
		return
	}
	delete(b.sent, ref)
	b.retry = append(b.retry, req)
}

func (b *builder) next() protocol.OrderMsg {
	var req protocol.OrderReq
	if len(b.retry) > 0 {
		req = b.retry[0]
		b.retry = b.retry[1:]
	} else {
		req = b.fresh()
	}
	b.seq++
	req.ID = fmt.Sprintf("bot_%d", b.seq)
	if b.sent == nil {
		b.sent = map[string]protocol.OrderReq{}
	}
	b.sent[req.ID] = req
	return protocol.OrderMsg{
		Type:            protocol.TypeOrder,
		ProtocolVersion: protocol.Version,
		ID:              req.ID,
		Orders:          []protocol.OrderReq{req},
	}
}

func (b *builder) fresh() protocol.OrderReq {
	b.n++
	var req protocol.OrderReq
	if b.n%4 == 0 && b.x >= 2 {
		req.Type = protocol.OrderBreak
		req.Pos = [2]int{b.x - 2, b.row}
		return req
	}
	req.Type = protocol.OrderPlace
	req.Block = b.block
	req.Pos = [2]int{b.x, b.row}
	b.x++
	if b.width > 0 && b.x >= b.width {
		b.x = 0
	}
	return req
}
