package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"
	"time"

	"factoryforge.io/internal/observerproto"
	"factoryforge.io/internal/sim/tuning"
	"factoryforge.io/internal/sim/world"
	"factoryforge.io/internal/transport/observer"
	"factoryforge.io/internal/transport/ws"
)

// worldStats is the subset of world state exported as metrics and by the
// admin state endpoint.
type worldStats struct {
	WorldID   string `json:"world_id"`
	Tick      uint64 `json:"tick"`
	CallSeq   uint64 `json:"call_seq"`
	Agents    int    `json:"agents"`
	Buildings int    `json:"buildings"`
	Sites     int    `json:"sites"`
	Breaking  int    `json:"breaking"`
}

func statsFrom(b observerproto.BootstrapResponse) worldStats {
	st := worldStats{WorldID: b.WorldID, Tick: b.Tick, CallSeq: b.CallSeq, Agents: len(b.Agents)}
	for _, o := range b.Occupants {
		switch {
		case o.Site == nil:
			st.Buildings++
		case o.Site.Breaking:
			st.Breaking++
		default:
			st.Sites++
		}
	}
	return st
}

func requestStats(ctx context.Context, w *world.World) (worldStats, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := w.RequestBootstrap(ctx)
	if err != nil {
		return worldStats{}, err
	}
	return statsFrom(b), nil
}

type routes struct {
	worldID string
	w       *world.World
	idx     runtimeIndex
	tune    tuning.Tuning
	logger  *log.Logger

	admin bool
	pprof bool
}

func (rt routes) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		st, err := requestStats(r.Context(), rt.w)
		if err != nil {
			// The loop is busy; the tick counter is still safe to read.
			st = worldStats{WorldID: rt.worldID, Tick: rt.w.CurrentTick()}
		}
		st.WorldID = rt.worldID
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, st, err == nil, rt.idx)
	})

	if rt.admin {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			st, err := requestStats(r.Context(), rt.w)
			if err != nil {
				http.Error(rw, "world busy", http.StatusServiceUnavailable)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(st)
		})
		obsSrv := observer.NewServer(rt.w, rt.logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		rt.logger.Printf("admin endpoints disabled (FF_ENABLE_ADMIN_HTTP=false)")
	}
	if rt.pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	wsSrv := ws.NewServer(rt.w, rt.logger)
	wsSrv.SetRateLimits(rt.tune.RateLimits)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	return mux
}

// writeMetrics renders Prometheus text exposition. Occupant gauges are only
// written when full is set.
func writeMetrics(rw http.ResponseWriter, st worldStats, full bool, idx runtimeIndex) {
	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP %s %s\n# TYPE %s gauge\n", name, help, name)
		fmt.Fprintf(rw, "%s{world=%q} %v\n", name, st.WorldID, v)
	}
	gauge("factoryforge_world_tick", "Current world tick.", st.Tick)
	if full {
		gauge("factoryforge_call_seq", "Sequence of the last replicated call.", st.CallSeq)
		gauge("factoryforge_agents", "Connected or detached agents.", st.Agents)
		gauge("factoryforge_buildings", "Finished buildings on the grid.", st.Buildings)
		fmt.Fprintf(rw, "# HELP factoryforge_sites Construction sites by direction.\n# TYPE factoryforge_sites gauge\n")
		fmt.Fprintf(rw, "factoryforge_sites{world=%q,dir=%q} %d\n", st.WorldID, "construct", st.Sites)
		fmt.Fprintf(rw, "factoryforge_sites{world=%q,dir=%q} %d\n", st.WorldID, "deconstruct", st.Breaking)
	}
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP factoryforge_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE factoryforge_index_dropped_total counter\n")
	for _, kv := range []struct {
		kind string
		n    uint64
	}{{"tick", s.DropTickTotal}, {"build", s.DropBuildTotal}, {"snapshot", s.DropSnapshotTotal}} {
		fmt.Fprintf(rw, "factoryforge_index_dropped_total{world=%q,kind=%q} %d\n", st.WorldID, kv.kind, kv.n)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
