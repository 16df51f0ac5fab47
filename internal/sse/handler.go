package sse

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/debemdeboas/markedit/internal/config"
	"github.com/debemdeboas/markedit/internal/model"
)

// Write encodes msg as an SSE frame. Multi-line data is split across data fields.
func Write(w http.ResponseWriter, msg Message) error {
	var b strings.Builder
	if msg.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", msg.Event)
	}
	for _, line := range strings.Split(msg.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err := w.Write([]byte(b.String()))
	return err
}

// ServeHTTP streams events for the document named by the "document" query parameter.
func (s *Clients) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("document")
	if id == "" {
		http.Error(w, "document parameter required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set(config.HCType, config.CTypeEventStream)
	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set(config.HConnection, "keep-alive")

	client := NewClient(model.DocumentID(id))
	s.Add(client)
	sseLogger.Debug().Str("document_id", id).Msg("SSE client connected")
	defer func() {
		s.Delete(client)
		sseLogger.Debug().Str("document_id", id).Msg("SSE client disconnected")
	}()

	if err := Write(w, Message{Event: "connected", Data: id}); err != nil {
		return
	}
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case msg, ok := <-client.Msg:
			if !ok {
				return
			}
			if err := Write(w, msg); err != nil {
				return
			}
			flusher.Flush()
		case <-notify:
			return
		}
	}
}
