package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type opsStatus struct {
	Status string `json:"status"`
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(opsStatus{Status: status})
}

// mountOps adds the health and drain endpoints used by orchestrators.
func (srv *Server) mountOps(r chi.Router) {
	r.Get("/livez", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "alive")
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !srv.IsReady() {
			writeStatus(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})

	r.Get("/drain", func(w http.ResponseWriter, r *http.Request) {
		if !srv.setReady(false) {
			writeStatus(w, http.StatusOK, "already draining")
			return
		}
		writeStatus(w, http.StatusOK, "draining")
	})

	r.Get("/undrain", func(w http.ResponseWriter, r *http.Request) {
		if !srv.setReady(true) {
			writeStatus(w, http.StatusOK, "already ready")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
}

// IsReady reports whether /readyz answers 200.
func (srv *Server) IsReady() bool {
	return srv.isReady.Load()
}

// setReady stores ready and reports whether that changed anything.
func (srv *Server) setReady(ready bool) bool {
	if srv.isReady.Swap(ready) == ready {
		return false
	}
	if ready {
		srv.log.Info("Server marked as ready")
	} else {
		srv.log.Info("Server marked as not ready")
	}
	return true
}
