package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"coinlog/internal/config"
	"coinlog/internal/core"
	applog "coinlog/internal/log"
	"coinlog/internal/session"
	"coinlog/internal/storage"
)

type recordResponse struct {
	Entity string      `json:"entity"`
	Record core.Record `json:"record"`
	Save   saveStatus  `json:"save"`
}

type saveStatus struct {
	OK       bool   `json:"ok"`
	Source   string `json:"source"`
	FellBack bool   `json:"fell_back"`
	Error    string `json:"error,omitempty"`
}

func saveStatusFrom(report session.SaveReport) saveStatus {
	st := saveStatus{
		OK:       report.OK(),
		Source:   string(report.Source),
		FellBack: report.FellBack,
	}
	if err := report.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := parseAddRecordRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, report, err := s.sess.AddRecord(r.Context(), req.Entity, req.Base, req.Boost, req.Items())
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, recordResponse{
		Entity: req.Entity,
		Record: rec,
		Save:   saveStatusFrom(report),
	})
}

func (s *Server) handleDeleteLast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entity := strings.TrimSpace(r.URL.Query().Get("entity"))
	if entity == "" {
		writeError(w, http.StatusBadRequest, "entity parameter is required")
		return
	}

	deleted, report, err := s.sess.DeleteLast(r.Context(), entity)
	if err != nil {
		if errors.Is(err, session.ErrNotLoaded) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := struct {
		Entity  string      `json:"entity"`
		Deleted bool        `json:"deleted"`
		Save    *saveStatus `json:"save,omitempty"`
	}{Entity: entity, Deleted: deleted}
	if deleted {
		st := saveStatusFrom(report)
		resp.Save = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCollection serves the collection in its canonical file encoding, so
// the response body is byte-for-byte what the local data file would hold.
func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	col := s.sess.Snapshot()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := col.Encode(w); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode collection", "error", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entity := strings.TrimSpace(r.URL.Query().Get("entity"))
	if entity == "" {
		all := s.sess.AllStats()
		var total int
		for _, st := range all {
			total += st.Plays
		}
		writeJSON(w, http.StatusOK, struct {
			Entities     []core.EntityStats `json:"entities"`
			TotalRecords int                `json:"total_records"`
		}{Entities: all, TotalRecords: total})
		return
	}

	stats := s.sess.Stats(entity)
	if stats.Plays == 0 {
		writeError(w, http.StatusNotFound, "no records for entity")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	err := s.sess.Sync(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "synced",
		"source": string(s.sess.Kind()),
	})
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	err := s.sess.Backup(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNoWebhook):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, session.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "backed_up"})
}

// configView is the redacted configuration exposed over the API. The token
// itself is never returned.
type configView struct {
	Port string `json:"port"`

	Remote struct {
		Configured bool   `json:"configured"`
		Owner      string `json:"owner,omitempty"`
		Repo       string `json:"repo,omitempty"`
		Path       string `json:"path,omitempty"`
	} `json:"remote"`

	Webhook struct {
		Configured bool `json:"configured"`
		AutoNotify bool `json:"auto_notify"`
		AutoBackup bool `json:"auto_backup"`
	} `json:"webhook"`

	Source        string `json:"source"`
	DataFile      string `json:"data_file"`
	JournalDBPath string `json:"journal_db_path"`
	HTTPTimeout   string `json:"http_timeout"`
}

// runtimeKeys are the settings that may change without a restart. Store
// coordinates are fixed at startup because the source is resolved once.
var runtimeKeys = map[string]bool{
	config.KeyWebhookURL:  true,
	config.KeyAutoNotify:  true,
	config.KeyAutoBackup:  true,
	config.KeyHTTPTimeout: true,
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetConfig(w, r)
	case http.MethodPut:
		s.handlePutConfig(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.sess.Config()

	var view configView
	view.Port = cfg.Port
	view.Remote.Configured = cfg.RemoteConfigured()
	if view.Remote.Configured {
		view.Remote.Owner = cfg.GitHubOwner
		view.Remote.Repo = cfg.GitHubRepo
		view.Remote.Path = cfg.GitHubPath
	}
	view.Webhook.Configured = cfg.WebhookURL != ""
	view.Webhook.AutoNotify = cfg.AutoNotify
	view.Webhook.AutoBackup = cfg.AutoBackup
	view.Source = string(s.sess.Kind())
	view.DataFile = cfg.DataFile
	view.JournalDBPath = cfg.JournalDBPath
	view.HTTPTimeout = cfg.HTTPTimeout.String()

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	for key := range updates {
		if !runtimeKeys[key] {
			writeError(w, http.StatusUnprocessableEntity, "setting cannot be changed at runtime: "+key)
			return
		}
	}

	// Remember prior overrides so an invalid update can be rolled back.
	type prior struct {
		value string
		set   bool
	}
	before := make(map[string]prior, len(updates))
	for key, value := range updates {
		v, ok := s.chain.Override(key)
		before[key] = prior{value: v, set: ok}
		s.chain.Set(key, value)
	}

	cfg := s.chain.Resolve()
	if err := cfg.Validate(); err != nil {
		for key, p := range before {
			if p.set {
				s.chain.Set(key, p.value)
			} else {
				s.chain.Clear(key)
			}
		}
		s.sess.ReloadConfig()
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.sess.ReloadConfig()
	s.handleGetConfig(w, r)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := struct {
		Entries []storage.Entry `json:"entries"`
	}{Entries: []storage.Entry{}}

	journal := s.sess.Journal()
	if journal == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries != nil {
		resp.Entries = entries
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	m := s.tracer.GetMetrics()
	writeJSON(w, http.StatusOK, struct {
		TotalRequests     int64 `json:"total_requests"`
		AvgResponseTimeUs int64 `json:"avg_response_time_us"`
		TrackedClients    int   `json:"tracked_clients"`
	}{
		TotalRequests:     m.TotalRequests,
		AvgResponseTimeUs: m.AverageResponseTime,
		TrackedClients:    s.limiter.ActiveClients(),
	})
}

// writeJSON writes a JSON response without escaping non-ASCII entity names.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
