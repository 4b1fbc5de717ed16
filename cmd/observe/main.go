package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"factoryforge.io/internal/fx/sound"
	"factoryforge.io/internal/observerproto"
	"factoryforge.io/internal/sim/catalogs"
	"factoryforge.io/internal/sim/tuning"
)

func main() {
	var (
		url       = flag.String("url", "ws://127.0.0.1:8080/admin/v1/observer/ws", "observer ws url")
		configDir = flag.String("configs", "./configs", "config directory")
		wavPath   = flag.String("wav", "cues.wav", "where to write rendered completion cues (empty to skip)")
		duration  = flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
		events    = flag.Bool("events", false, "request per-tick build events")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[observe] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		logger.Printf("load tuning: %v; using default audio settings", err)
		tune = tuning.Defaults()
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version, Events: *events}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		logger.Fatalf("read bootstrap: %v", err)
	}
	var b observerproto.BootstrapResponse
	if err := json.Unmarshal(msg, &b); err != nil || b.Type != observerproto.TypeBootstrap {
		logger.Fatalf("bad bootstrap: %v", err)
	}
	s, err := newSession(b, cats, tune.Audio, logger)
	if err != nil {
		logger.Fatalf("mirror: %v", err)
	}
	logger.Printf("mirroring world=%s tick=%d call_seq=%d occupants=%d", b.WorldID, b.Tick, b.CallSeq, len(b.Occupants))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		if *duration > 0 {
			select {
			case <-stop:
			case <-time.After(*duration):
			}
		} else {
			<-stop
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if err := s.handle(msg); err != nil {
			logger.Printf("stream: %v", err)
			break
		}
	}

	logger.Printf("done: ticks=%d calls=%d diverged=%d cues=%d", s.ticks, s.calls, s.diverged, s.timeline.Len())
	if *wavPath == "" {
		return
	}
	if err := sound.WriteWAVFile(*wavPath, s.timeline, sound.NewRenderer()); err != nil {
		logger.Fatalf("write wav: %v", err)
	}
	logger.Printf("wrote %s", *wavPath)
}
