// Package adminclient is the HTTP client for the windlass admin server. The
// status command and external tooling use it to query a running server
// without speaking the client line protocol.
package adminclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultTimeout keeps probes snappy: a status check against a dead server
// should fail fast, not hang.
const defaultTimeout = 2 * time.Second

// Client talks to one admin server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the admin server at addr. addr may be a bare
// host:port or a full URL.
func New(addr string) *Client {
	baseURL := addr
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// WithTimeout returns a client with a different request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	return &Client{
		baseURL: c.baseURL,
		httpClient: &http.Client{
			Timeout: d,
		},
	}
}

// envelope is the admin server's JSON response wrapper.
type envelope struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Command   string          `json:"command,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// get fetches path and decodes the response envelope. Error statuses are
// returned as *APIError carrying the server's message.
func (c *Client) get(path string) (*envelope, error) {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := env.Error
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return &env, nil
}

// getData fetches path and unmarshals the envelope's data payload into out.
func (c *Client) getData(path string, out any) error {
	env, err := c.get(path)
	if err != nil {
		return err
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("response has no data payload")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode data payload: %w", err)
	}
	return nil
}

// HealthInfo is the engine state reported by the liveness probe.
type HealthInfo struct {
	// State is the engine state: initializing, running, error, or shutdown
	State string `json:"state"`

	// Healthy is true when the probe returned 200
	Healthy bool `json:"-"`
}

// Health queries the liveness probe. A 503 is still a successful query: the
// server answered, it just is not serving yet, and the returned info carries
// its state. Only transport and decode failures return an error.
func (c *Client) Health() (*HealthInfo, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	info := &HealthInfo{Healthy: resp.StatusCode == http.StatusOK}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, info); err != nil {
			return nil, fmt.Errorf("failed to decode data payload: %w", err)
		}
	}
	return info, nil
}

// StatInfo is the engine summary from the stat command.
type StatInfo struct {
	State      string    `json:"state"`
	NodeCount  int       `json:"node_count"`
	LastTxid   uint64    `json:"last_txid"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	UptimeSecs int64     `json:"uptime_secs"`
	TickTimeMs int64     `json:"tick_time_ms"`
}

// Stat fetches the engine summary.
func (c *Client) Stat() (*StatInfo, error) {
	var info StatInfo
	if err := c.getData("/commands/stat", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ConfInfo is the serving configuration from the conf command.
type ConfInfo struct {
	RunID          string `json:"run_id"`
	TickTimeMs     int64  `json:"tick_time_ms"`
	MaxClientConns int    `json:"max_client_conns"`
	DataDir        string `json:"data_dir"`
	LogDir         string `json:"log_dir"`
}

// Conf fetches the serving configuration.
func (c *Client) Conf() (*ConfInfo, error) {
	var info ConfInfo
	if err := c.getData("/commands/conf", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// EnviInfo is the process environment from the envi command.
type EnviInfo struct {
	ServerVersion string `json:"server_version"`
	GoVersion     string `json:"go_version"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	NumCPU        int    `json:"num_cpu"`
	Hostname      string `json:"hostname"`
	User          string `json:"user"`
	PID           int    `json:"pid"`
}

// Envi fetches the process environment.
func (c *Client) Envi() (*EnviInfo, error) {
	var info EnviInfo
	if err := c.getData("/commands/envi", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// MntrInfo is the monitoring snapshot from the mntr command.
type MntrInfo struct {
	State                string `json:"state"`
	NodeCount            int    `json:"node_count"`
	LastTxid             uint64 `json:"last_txid"`
	UptimeSecs           int64  `json:"uptime_secs"`
	AppendsSinceSnapshot int    `json:"appends_since_snapshot"`
}

// Mntr fetches the monitoring snapshot.
func (c *Client) Mntr() (*MntrInfo, error) {
	var info MntrInfo
	if err := c.getData("/commands/mntr", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DirsInfo is the storage layout from the dirs command.
type DirsInfo struct {
	DataDir string `json:"data_dir"`
	LogDir  string `json:"log_dir"`
}

// Dirs fetches the storage layout.
func (c *Client) Dirs() (*DirsInfo, error) {
	var info DirsInfo
	if err := c.getData("/commands/dirs", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Ruok pings the server. It returns nil when the engine answers imok.
func (c *Client) Ruok() error {
	var payload struct {
		Response string `json:"response"`
	}
	if err := c.getData("/commands/ruok", &payload); err != nil {
		return err
	}
	if payload.Response != "imok" {
		return fmt.Errorf("unexpected ruok response %q", payload.Response)
	}
	return nil
}

// Commands lists the server's diagnostic commands.
func (c *Client) Commands() ([]string, error) {
	var payload struct {
		Commands []string `json:"commands"`
	}
	if err := c.getData("/commands", &payload); err != nil {
		return nil, err
	}
	return payload.Commands, nil
}
