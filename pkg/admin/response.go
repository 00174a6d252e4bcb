package admin

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the envelope every admin endpoint returns.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command,omitempty"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// writeJSON renders a response with the given HTTP status.
func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func okResponse(command string, data any) Response {
	return Response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Command:   command,
		Data:      data,
	}
}

func errorResponse(command, errMsg string) Response {
	return Response{
		Status:    "error",
		Timestamp: time.Now().UTC(),
		Command:   command,
		Error:     errMsg,
	}
}
