package server

import (
	"net/http"
)

func NewMux(h *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", h.HandleStatus)
	mux.HandleFunc("/triage", h.HandleTriage)
	mux.HandleFunc("/explain", h.HandleExplain)
	mux.HandleFunc("/watch", h.HandleWatch)

	return CORS(RequestID(mux))
}
