package admin

import (
	"net/http"
	"os"
	"os/user"
	"runtime"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/windlass-io/windlass/pkg/server"
)

// Version is the server version reported by the envi command. The CLI sets
// it at startup from its build information.
var Version = "dev"

// commandFunc produces one diagnostic command's payload.
type commandFunc func() (any, error)

// commandHandler serves the diagnostic command set against the engine.
type commandHandler struct {
	engine   *server.Engine
	commands map[string]commandFunc
}

func newCommandHandler(engine *server.Engine) *commandHandler {
	h := &commandHandler{engine: engine}
	h.commands = map[string]commandFunc{
		"ruok": h.ruok,
		"stat": h.stat,
		"conf": h.conf,
		"envi": h.envi,
		"mntr": h.mntr,
		"dirs": h.dirs,
	}
	return h
}

// Health is the liveness probe. It reports 200 while the engine runs and 503
// in any other state so orchestrators can act on it.
func (h *commandHandler) Health(w http.ResponseWriter, r *http.Request) {
	state := h.engine.State()
	payload := map[string]string{"state": state.String()}

	if state == server.StateRunning {
		writeJSON(w, http.StatusOK, okResponse("", payload))
		return
	}
	resp := errorResponse("", "engine is not running")
	resp.Data = payload
	writeJSON(w, http.StatusServiceUnavailable, resp)
}

// List returns the names of all registered commands.
func (h *commandHandler) List(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.commands))
	for name := range h.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, okResponse("", map[string]any{"commands": names}))
}

// Run executes one command by name.
func (h *commandHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "command")

	cmd, ok := h.commands[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse(name, "unknown command"))
		return
	}

	data, err := cmd()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(name, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(name, data))
}

func (h *commandHandler) ruok() (any, error) {
	if h.engine.State() != server.StateRunning {
		return nil, server.ErrNotRunning
	}
	return map[string]string{"response": "imok"}, nil
}

func (h *commandHandler) stat() (any, error) {
	return h.engine.Stats(), nil
}

func (h *commandHandler) conf() (any, error) {
	logStats := h.engine.LogStats()
	return map[string]any{
		"run_id":           h.engine.RunID(),
		"tick_time_ms":     h.engine.TickTime().Milliseconds(),
		"max_client_conns": h.engine.MaxClientConns(),
		"data_dir":         logStats.DataDir,
		"log_dir":          logStats.LogDir,
	}, nil
}

func (h *commandHandler) envi() (any, error) {
	hostname, _ := os.Hostname()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return map[string]any{
		"server_version": Version,
		"go_version":     runtime.Version(),
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"num_cpu":        runtime.NumCPU(),
		"hostname":       hostname,
		"user":           username,
		"pid":            os.Getpid(),
	}, nil
}

func (h *commandHandler) mntr() (any, error) {
	stats := h.engine.Stats()
	logStats := h.engine.LogStats()
	return map[string]any{
		"state":                  stats.State,
		"node_count":             stats.NodeCount,
		"last_txid":              stats.LastTxid,
		"uptime_secs":            stats.UptimeSecs,
		"appends_since_snapshot": logStats.AppendsSinceSnapshot,
	}, nil
}

func (h *commandHandler) dirs() (any, error) {
	logStats := h.engine.LogStats()
	return map[string]string{
		"data_dir": logStats.DataDir,
		"log_dir":  logStats.LogDir,
	}, nil
}
