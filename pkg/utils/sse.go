package utils

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/iamvkosarev/epic-tech-ai/internal/logger"
)

// SetupSSEHeaders prepares w for a Server-Sent Events stream.
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// SendSSEEvent writes one named event with a JSON payload and flushes it.
func SendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Warn("failed to marshal sse event data", "event", event, "error", err)
		return
	}

	if _, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		logger.Debug("failed to write sse event", "event", event, "error", err)
		return
	}
	flusher.Flush()
}
