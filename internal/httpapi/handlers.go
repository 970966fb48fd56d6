package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"apiwatch/internal/domain"
	"apiwatch/internal/monitor"
	"apiwatch/internal/repo"
	"apiwatch/internal/report"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) targetID(w http.ResponseWriter, r *http.Request) (domain.TargetID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusBadRequest, "invalid target id")
		return 0, false
	}
	return domain.TargetID(id), true
}

func (s *Server) storeErr(w http.ResponseWriter, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "target not found")
		return
	}
	s.Log.Error("store error", zap.Error(err))
	writeErr(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Store.List(r.Context())
	if err != nil {
		s.storeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := s.targetID(w, r)
	if !ok {
		return
	}
	t, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.storeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type createPayload struct {
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers"`
	RequestBody    string            `json:"request_body"`
	ExpectedStatus int               `json:"expected_status"`
	TimeoutSec     int               `json:"timeout_sec"`
	IntervalSec    int               `json:"interval_sec"`
	JSONKeys       string            `json:"json_keys"`
	Sensitivity    float64           `json:"sensitivity"`
	AnomalyM       int               `json:"anomaly_m"`
	AnomalyN       int               `json:"anomaly_n"`
	AnomalyAlerts  *bool             `json:"anomaly_alerts"`
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var p createPayload
	if err := dec.Decode(&p); err != nil {
		writeErr(w, http.StatusBadRequest, "bad payload: "+err.Error())
		return
	}
	if !isValidHTTPURL(p.URL) {
		writeErr(w, http.StatusBadRequest, "url must be absolute http(s)")
		return
	}

	t := &domain.Target{
		Name:           p.Name,
		URL:            normalizeHTTPURL(p.URL),
		Method:         p.Method,
		Headers:        p.Headers,
		RequestBody:    p.RequestBody,
		ExpectedStatus: p.ExpectedStatus,
		TimeoutSec:     p.TimeoutSec,
		IntervalSec:    p.IntervalSec,
		JSONKeys:       p.JSONKeys,
		Sensitivity:    p.Sensitivity,
		AnomalyM:       p.AnomalyM,
		AnomalyN:       p.AnomalyN,
		AnomalyAlerts:  true,
		IsActive:       true,
		IsUp:           true,
	}
	if p.AnomalyAlerts != nil {
		t.AnomalyAlerts = *p.AnomalyAlerts
	}
	if t.Method == "" {
		t.Method = http.MethodGet
	}
	if t.ExpectedStatus == 0 {
		t.ExpectedStatus = http.StatusOK
	}
	if t.TimeoutSec == 0 {
		t.TimeoutSec = 10
	}
	if t.IntervalSec == 0 {
		t.IntervalSec = 60
	}
	if err := domain.ValidateNew(t); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.Store.Create(r.Context(), t); err != nil {
		s.storeErr(w, err)
		return
	}
	if s.Hooks.Schedule != nil {
		s.Hooks.Schedule(t)
	}
	s.Log.Info("target created",
		zap.Int64("target_id", int64(t.ID)), zap.String("url", t.URL))
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handlePatchTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := s.targetID(w, r)
	if !ok {
		return
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var p domain.TargetPatch
	if err := dec.Decode(&p); err != nil {
		writeErr(w, http.StatusBadRequest, "bad payload: "+err.Error())
		return
	}
	current, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.storeErr(w, err)
		return
	}
	if p.URL != nil {
		norm := normalizeHTTPURL(*p.URL)
		p.URL = &norm
	}
	if err := p.Validate(current); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.Store.Patch(r.Context(), id, &p)
	if err != nil {
		s.storeErr(w, err)
		return
	}
	// a new interval only takes effect through a fresh job
	if p.IntervalSec != nil && updated.IsActive && s.Hooks.Schedule != nil {
		s.Hooks.Schedule(updated)
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := s.targetID(w, r)
	if !ok {
		return
	}
	if err := s.Store.Delete(r.Context(), id); err != nil {
		s.storeErr(w, err)
		return
	}
	if s.Hooks.Unschedule != nil {
		s.Hooks.Unschedule(id)
	}
	s.Log.Info("target deleted", zap.Int64("target_id", int64(id)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := s.targetID(w, r)
	if !ok {
		return
	}
	t, err := s.Store.SetActive(r.Context(), id, false)
	if err != nil {
		s.storeErr(w, err)
		return
	}
	if s.Hooks.Unschedule != nil {
		s.Hooks.Unschedule(id)
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleResumeTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := s.targetID(w, r)
	if !ok {
		return
	}
	t, err := s.Store.SetActive(r.Context(), id, true)
	if err != nil {
		s.storeErr(w, err)
		return
	}
	if s.Hooks.Schedule != nil {
		s.Hooks.Schedule(t)
	}
	writeJSON(w, http.StatusOK, t)
}

type mutePayload struct {
	Minutes int `json:"minutes"` // 0 mutes until unmute
}

func (s *Server) handleMuteTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := s.targetID(w, r)
	if !ok {
		return
	}
	var p mutePayload
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeErr(w, http.StatusBadRequest, "bad payload")
			return
		}
	}
	if p.Minutes < 0 {
		writeErr(w, http.StatusBadRequest, "minutes must be >= 0")
		return
	}
	var until *time.Time
	if p.Minutes > 0 {
		u := s.Now().Add(time.Duration(p.Minutes) * time.Minute)
		until = &u
	}
	if err := s.Store.SetMute(r.Context(), id, true, until); err != nil {
		s.storeErr(w, err)
		return
	}
	t, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.storeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUnmuteTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := s.targetID(w, r)
	if !ok {
		return
	}
	if err := s.Store.SetMute(r.Context(), id, false, nil); err != nil {
		s.storeErr(w, err)
		return
	}
	t, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.storeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTargetStats(w http.ResponseWriter, r *http.Request) {
	id, ok := s.targetID(w, r)
	if !ok {
		return
	}
	if _, err := s.Store.Get(r.Context(), id); err != nil {
		s.storeErr(w, err)
		return
	}
	period := r.URL.Query().Get("period")
	stats, err := monitor.PeriodStatsFor(r.Context(), s.Store, id, period, s.Now())
	if err != nil {
		s.storeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTargetIncidents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.targetID(w, r)
	if !ok {
		return
	}
	if _, err := s.Store.Get(r.Context(), id); err != nil {
		s.storeErr(w, err)
		return
	}
	window, _ := report.PeriodWindow(r.URL.Query().Get("period"))
	incs, err := s.Store.IncidentsSince(r.Context(), id, s.Now().Add(-window))
	if err != nil {
		s.storeErr(w, err)
		return
	}
	if incs == nil {
		incs = []domain.Incident{}
	}
	writeJSON(w, http.StatusOK, incs)
}

type statusEntry struct {
	Target *domain.Target `json:"target"`
	Line   string         `json:"line"`
}

func (s *Server) handleFleetStatus(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Store.List(r.Context())
	if err != nil {
		s.storeErr(w, err)
		return
	}
	out := make([]statusEntry, 0, len(ts))
	for _, t := range ts {
		out = append(out, statusEntry{Target: t, Line: report.StatusLine(t)})
	}
	writeJSON(w, http.StatusOK, out)
}

type subscriptionPayload struct {
	ChatID        string           `json:"chat_id"`
	TargetID      *domain.TargetID `json:"target_id"`
	AnomalyAlerts *bool            `json:"anomaly_alerts"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var p subscriptionPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.ChatID == "" {
		writeErr(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	if p.TargetID != nil {
		if _, err := s.Store.Get(r.Context(), *p.TargetID); err != nil {
			s.storeErr(w, err)
			return
		}
	}
	sub := &domain.Subscriber{ChatID: p.ChatID, TargetID: p.TargetID, AnomalyAlerts: true}
	if p.AnomalyAlerts != nil {
		sub.AnomalyAlerts = *p.AnomalyAlerts
	}
	if err := s.Store.Subscribe(r.Context(), sub); err != nil {
		s.storeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var p subscriptionPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.ChatID == "" {
		writeErr(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	if err := s.Store.Unsubscribe(r.Context(), p.ChatID, p.TargetID); err != nil {
		s.storeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
