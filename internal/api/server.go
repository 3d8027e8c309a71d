package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/binwatch/internal/hub"
	"github.com/binwatch/internal/ingestion"
	"github.com/binwatch/internal/registry"
	"github.com/binwatch/internal/stats"
	"github.com/binwatch/internal/telemetry"
)

// Server is the HTTP surface: telemetry submission for the sensor,
// statistics and control endpoints for the app, session and token
// registration, and the websocket upgrade.
type Server struct {
	store *telemetry.Store
	reg   *registry.Registry
	hub   *hub.Hub
	pipe  *ingestion.Pipeline
	state *ingestion.State
}

func New(store *telemetry.Store, reg *registry.Registry, h *hub.Hub, pipe *ingestion.Pipeline, state *ingestion.State) *Server {
	return &Server{store: store, reg: reg, hub: h, pipe: pipe, state: state}
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/bin/update", s.handleUpdate)
	mux.HandleFunc("/api/bin/current", s.handleCurrent)
	mux.HandleFunc("/api/bin/manual-open", s.handleManualOpen)
	mux.HandleFunc("/api/bin/auto-mode", s.handleAutoMode)
	mux.HandleFunc("/api/bin/statistics", s.handleStatistics)
	mux.HandleFunc("/api/bin/chart-summary", s.handleChartSummary)
	mux.HandleFunc("/api/bin/ping", s.handlePing)
	mux.HandleFunc("/api/devices/update", s.handleDeviceUpdate)
	mux.HandleFunc("/api/devices/all", s.handleDevicesAll)
	mux.HandleFunc("/api/devices/open", s.handleDevicesOpen)
	mux.HandleFunc("/api/devices/closed", s.handleDevicesClosed)
	mux.HandleFunc("/api/devices/check/", s.handleDeviceCheck)
	mux.HandleFunc("/api/tokens/save", s.handleTokenSave)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/ws/stats", s.handleWSStats)
	return mux
}

// Start blocks serving HTTP on port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("[API] Listening on %s", addr)
	return http.ListenAndServe(addr, s.Routes())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func allowCORS(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	return true
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	sample, err := ingestion.ParseSample(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.pipe.Ingest(sample); err != nil {
		log.Printf("[API] Ingest failed: %v", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"message": "sample accepted", "level": sample.FillLevel})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	writeJSON(w, map[string]any{"fillLevel": s.state.FillLevel()})
}

type manualOpenRequest struct {
	Open bool `json:"open"`
}

func (s *Server) handleManualOpen(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]any{"open": s.state.ManualOpen()})
	case http.MethodPost:
		var req manualOpenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		s.state.SetManualOpen(req.Open)
		log.Printf("[API] Manual lid request: open=%v", req.Open)
		writeJSON(w, map[string]any{"success": true, "open": req.Open})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type autoModeRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleAutoMode(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]any{"enabled": s.state.AutoOpen()})
	case http.MethodPost:
		var req autoModeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		s.state.SetAutoOpen(req.Enabled)
		log.Printf("[API] Auto-open mode: enabled=%v", req.Enabled)
		writeJSON(w, map[string]any{"success": true, "enabled": req.Enabled})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	daily := stats.ComputeDaily(s.store.Today(time.Now()))
	writeJSON(w, daily)
}

func (s *Server) handleChartSummary(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	rng := stats.ParseRange(r.URL.Query().Get("range"))
	now := time.Now()
	samples := s.store.QueryRange(stats.StartOf(rng, now), now)
	buckets := stats.ChartSummary(samples, rng)

	labels := make([]string, len(buckets))
	avgFill := make([]float64, len(buckets))
	openCount := make([]int, len(buckets))
	over80 := make([]int, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Label
		avgFill[i] = b.AvgFill
		openCount[i] = b.OpenCount
		over80[i] = b.Over80Count
	}
	writeJSON(w, map[string]any{
		"labels":      labels,
		"avgFill":     avgFill,
		"openCount":   openCount,
		"over80Count": over80,
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	writeJSON(w, map[string]any{"status": "ok"})
}

type deviceUpdateRequest struct {
	DeviceID     string `json:"deviceId"`
	ConnectionID string `json:"connectionId"`
	IsOpen       bool   `json:"isOpen"`
}

func (s *Server) handleDeviceUpdate(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req deviceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" {
		http.Error(w, "deviceId is required", http.StatusBadRequest)
		return
	}
	conn := req.ConnectionID
	if conn == "" {
		conn = "manual"
	}
	if err := s.reg.Upsert(req.DeviceID, conn, req.IsOpen); err != nil {
		log.Printf("[API] Device update failed: %v", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"success": true, "deviceId": req.DeviceID, "isOpen": req.IsOpen})
}

func (s *Server) handleDevicesAll(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	sessions, err := s.reg.ListAll()
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, sessions)
}

func (s *Server) handleDevicesOpen(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	ids, err := s.reg.ListOpen()
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"openDevices": ids, "count": len(ids)})
}

func (s *Server) handleDevicesClosed(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	ids, err := s.reg.ListClosed()
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"closedDevices": ids, "count": len(ids)})
}

func (s *Server) handleDeviceCheck(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	deviceID := strings.TrimPrefix(r.URL.Path, "/api/devices/check/")
	if deviceID == "" {
		http.Error(w, "deviceId is required", http.StatusBadRequest)
		return
	}
	open, err := s.reg.IsOpen(deviceID)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	status := "Closed"
	if open {
		status = "Open"
	}
	writeJSON(w, map[string]any{"deviceId": deviceID, "isOpen": open, "status": status})
}

type tokenSaveRequest struct {
	DeviceID string `json:"deviceId"`
	Token    string `json:"token"`
}

func (s *Server) handleTokenSave(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req tokenSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}
	if err := s.reg.SaveToken(req.DeviceID, req.Token); err != nil {
		log.Printf("[API] Token save failed: %v", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"message": "token saved or already exists"})
}

func (s *Server) handleWSStats(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r) {
		return
	}
	writeJSON(w, map[string]any{
		"connectedClients": s.hub.ClientCount(),
		"timestamp":        time.Now().Unix(),
		"status":           "active",
	})
}
