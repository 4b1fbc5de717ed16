package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"factoryforge.io/internal/observerproto"
)

// stateCmd fetches the live bootstrap from a running server and prints a
// summary of agents and construction sites.
func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("raw", false, "print the bootstrap JSON as served")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/observer/bootstrap"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		fmt.Fprintf(os.Stderr, "%s: %s\n", resp.Status, strings.TrimSpace(string(body)))
		os.Exit(1)
	}
	if *raw {
		fmt.Println(string(body))
		return
	}
	var b observerproto.BootstrapResponse
	if err := json.Unmarshal(body, &b); err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	fmt.Print(summarize(b))
}

func summarize(b observerproto.BootstrapResponse) string {
	name := func(id int16) string {
		if id >= 0 && int(id) < len(b.BlockPalette) {
			return b.BlockPalette[id]
		}
		return fmt.Sprintf("#%d", id)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "world=%s tick=%d call_seq=%d size=%dx%d\n",
		b.WorldID, b.Tick, b.CallSeq, b.WorldParams.Width, b.WorldParams.Height)

	agents := append([]observerproto.AgentInfo(nil), b.Agents...)
	sort.Slice(agents, func(i, j int) bool { return agents[i].AgentID < agents[j].AgentID })
	for _, a := range agents {
		fmt.Fprintf(&sb, "agent %s name=%s team=%d player=%v\n", a.AgentID, a.Name, a.Team, a.Player)
	}

	buildings := map[string]int{}
	var sites []observerproto.Occupant
	for _, o := range b.Occupants {
		if o.Site != nil {
			sites = append(sites, o)
			continue
		}
		buildings[name(o.Block)]++
	}
	keys := make([]string, 0, len(buildings))
	for k := range buildings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "buildings %s=%d\n", k, buildings[k])
	}
	for _, o := range sites {
		verb := "building"
		if o.Site.Breaking {
			verb = "breaking"
		}
		fmt.Fprintf(&sb, "site %d,%d %s %s team=%d %.0f%%\n",
			o.Pos[0], o.Pos[1], verb, name(o.Site.Target), o.Team, o.Site.Progress*100)
	}
	return sb.String()
}
