package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/sentinelwatch/sentinelwatch/internal/adapter/inbound/llmproxy"
)

func (s *Server) handleProxyStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.proxy.Status())
}

func (s *Server) handleProxyStart(w http.ResponseWriter, r *http.Request) {
	if err := s.proxy.Start(r.Context()); err != nil {
		if errors.Is(err, llmproxy.ErrAlreadyRunning) {
			writeJSON(w, http.StatusOK, s.proxy.Status())
			return
		}
		writeError(w, http.StatusInternalServerError, "proxy_error", "failed to start proxy", err.Error())
		return
	}
	s.metrics.ProxyRunning.Set(1)
	writeJSON(w, http.StatusOK, s.proxy.Status())
}

func (s *Server) handleProxyStop(w http.ResponseWriter, r *http.Request) {
	if err := s.proxy.Stop(r.Context(), 10*time.Second); err != nil {
		if errors.Is(err, llmproxy.ErrNotRunning) {
			writeJSON(w, http.StatusOK, s.proxy.Status())
			return
		}
		writeError(w, http.StatusInternalServerError, "proxy_error", "failed to stop proxy", err.Error())
		return
	}
	s.metrics.ProxyRunning.Set(0)
	writeJSON(w, http.StatusOK, s.proxy.Status())
}
