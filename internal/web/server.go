package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/elys-network/allocator/internal/keeper"
	"github.com/elys-network/allocator/internal/logger"
	"github.com/elys-network/allocator/internal/provider"
	"github.com/elys-network/allocator/internal/state"
	"github.com/elys-network/allocator/internal/vault"
)

func webLogger() *zerolog.Logger {
	l := logger.GetForComponent("web_server")
	return &l
}

//go:embed static/*
var staticFiles embed.FS

//go:embed static/index.html
var dashboardHTML []byte

// SnapshotSource provides the state left by the latest keeper tick.
type SnapshotSource interface {
	Snapshot() (keeper.Snapshot, bool)
}

// ReceiptSource provides stored reconcile receipts, newest first.
type ReceiptSource interface {
	RecentReceipts(ctx context.Context, providerName string, limit int) ([]state.Receipt, error)
}

// WebServer serves the vault's allocation state over HTTP.
type WebServer struct {
	router    *mux.Router
	port      string
	snapshots SnapshotSource
	receipts  ReceiptSource
	dbCheck   func() error
	started   time.Time
}

// NewWebServer creates a new web server instance. receipts and dbCheck may be nil
// when the allocator runs without a database.
func NewWebServer(port string, snapshots SnapshotSource, receipts ReceiptSource, dbCheck func() error) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:    mux.NewRouter(),
		port:      port,
		snapshots: snapshots,
		receipts:  receipts,
		dbCheck:   dbCheck,
		started:   time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Static files
	staticHandler := http.FileServer(http.FS(staticFiles))
	ws.router.PathPrefix("/static/").Handler(staticHandler)

	// Dashboard routes
	ws.router.HandleFunc("/", ws.handleDashboard).Methods("GET")
	ws.router.HandleFunc("/dashboard", ws.handleDashboard).Methods("GET")

	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/snapshot", ws.handleGetSnapshot).Methods("GET")
	api.HandleFunc("/vault", ws.handleGetVault).Methods("GET")
	api.HandleFunc("/allocations", ws.handleGetAllocations).Methods("GET")
	api.HandleFunc("/providers/{name}", ws.handleGetProvider).Methods("GET")
	api.HandleFunc("/reconciles", ws.handleGetReconciles).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	log := webLogger()
	log.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down web server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleHealth reports keeper progress, database reachability and process stats.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	var tickInfo map[string]interface{}
	if snap, ok := ws.snapshots.Snapshot(); ok {
		tickInfo = map[string]interface{}{
			"current_tick":    snap.Tick,
			"last_cycle_id":   snap.CycleID,
			"last_tick_time":  snap.Time,
			"last_tick_error": len(snap.Errors) > 0,
		}
		if snap.Reconcile != nil {
			tickInfo["actions_executed"] = len(snap.Reconcile.Acted())
		}
		hasErrors = len(snap.Errors) > 0
	} else {
		tickInfo = map[string]interface{}{
			"current_tick":   0,
			"last_tick_time": nil,
		}
		hasErrors = true
	}

	dbHealthy := true
	if ws.dbCheck != nil {
		if err := ws.dbCheck(); err != nil {
			webLogger().Warn().Err(err).Msg("Database health check failed")
			dbHealthy = false
			hasErrors = true
		}
	}

	system := map[string]interface{}{
		"version":            runtime.Version(),
		"goroutines_count":   runtime.NumGoroutine(),
		"total_alloc_bytes":  memStats.TotalAlloc,
		"heap_objects_count": memStats.HeapObjects,
		"alloc_bytes":        memStats.Alloc,
		"sys_bytes":          memStats.Sys,
		"gc_cycles":          memStats.NumGC,
		"uptime_seconds":     int64(time.Since(ws.started).Seconds()),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		system["host_memory_used_percent"] = vm.UsedPercent
		system["host_memory_total_bytes"] = vm.Total
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system":    system,
		"component": map[string]interface{}{
			"name":           "allocator",
			"record_version": vault.RecordVersion,
		},
		"allocator_status": map[string]interface{}{
			"database_healthy":  dbHealthy,
			"has_recent_errors": hasErrors,
			"tick_info":         tickInfo,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleDashboard serves the main dashboard HTML
func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(dashboardHTML)
}

// latest writes a 404 and returns false when no tick has completed.
func (ws *WebServer) latest(w http.ResponseWriter) (keeper.Snapshot, bool) {
	snap, ok := ws.snapshots.Snapshot()
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "No tick has completed yet")
	}
	return snap, ok
}

func (ws *WebServer) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := ws.latest(w)
	if !ok {
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, snap)
}

type vaultSummary struct {
	Tick      uint64            `json:"tick"`
	CycleID   string            `json:"cycle_id"`
	Value     uint64            `json:"value"`
	Fresh     bool              `json:"fresh"`
	LastTick  uint64            `json:"last_update_tick"`
	Flags     vault.Flags       `json:"flags"`
	Config    vault.Config      `json:"config"`
	Balances  keeper.Balances   `json:"balances"`
	Accrual   *vault.FeeAccrual `json:"accrual,omitempty"`
	Deployed  uint64            `json:"deployed"`
	Errors    []string          `json:"errors,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func (ws *WebServer) handleGetVault(w http.ResponseWriter, r *http.Request) {
	snap, ok := ws.latest(w)
	if !ok {
		return
	}

	v := snap.Vault
	deployed, err := v.ActualAllocations.Total()
	if err != nil {
		webLogger().Error().Err(err).Msg("Failed to total actual allocations")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to total allocations")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, vaultSummary{
		Tick:      snap.Tick,
		CycleID:   snap.CycleID,
		Value:     v.Value.Value,
		Fresh:     v.Value.IsFresh(snap.Tick),
		LastTick:  v.Value.LastUpdate.Tick,
		Flags:     v.Flags,
		Config:    v.Config,
		Balances:  snap.Balances,
		Accrual:   snap.Accrual,
		Deployed:  deployed,
		Errors:    snap.Errors,
		Timestamp: snap.Time,
	})
}

type allocationView struct {
	Provider    string             `json:"provider"`
	Target      uint64             `json:"target"`
	TargetFresh bool               `json:"target_fresh"`
	Actual      uint64             `json:"actual"`
	ActualFresh bool               `json:"actual_fresh"`
	Rates       keeper.RateSummary `json:"rates"`
}

func allocationsOf(snap keeper.Snapshot) []allocationView {
	out := make([]allocationView, 0, provider.Count)
	for p := range provider.Providers() {
		out = append(out, allocationOf(snap, p))
	}
	return out
}

func allocationOf(snap keeper.Snapshot, p provider.Provider) allocationView {
	target := snap.Vault.TargetAllocations.Get(p)
	actual := snap.Vault.ActualAllocations.Get(p)
	return allocationView{
		Provider:    p.String(),
		Target:      target.Value,
		TargetFresh: target.IsFresh(snap.Tick),
		Actual:      actual.Value,
		ActualFresh: actual.IsFresh(snap.Tick),
		Rates:       snap.Rates.Get(p),
	}
}

func (ws *WebServer) handleGetAllocations(w http.ResponseWriter, r *http.Request) {
	snap, ok := ws.latest(w)
	if !ok {
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"tick":        snap.Tick,
		"allocations": allocationsOf(snap),
	})
}

func (ws *WebServer) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := provider.ParseProvider(mux.Vars(r)["name"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, ok := ws.latest(w)
	if !ok {
		return
	}

	response := map[string]interface{}{
		"tick":       snap.Tick,
		"allocation": allocationOf(snap, p),
		"accounts":   snap.Vault.ProviderAccounts.Get(p),
	}
	if snap.Reconcile != nil {
		response["last_reconcile"] = snap.Reconcile.Outcomes.Get(p)
	}
	if snap.Refresh != nil {
		response["last_refresh"] = snap.Refresh.Outcomes.Get(p)
	}

	if ws.receipts != nil {
		receipts, err := ws.receipts.RecentReceipts(r.Context(), p.String(), parseLimit(r, 20))
		if err != nil {
			webLogger().Error().Err(err).Str("provider", p.String()).Msg("Failed to get receipts")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
			return
		}
		response["receipts"] = receipts
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetReconciles(w http.ResponseWriter, r *http.Request) {
	if ws.receipts == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Receipt storage is not configured")
		return
	}

	providerName := r.URL.Query().Get("provider")
	if providerName != "" {
		p, err := provider.ParseProvider(providerName)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		providerName = p.String()
	}

	limit := parseLimit(r, 50)
	receipts, err := ws.receipts.RecentReceipts(r.Context(), providerName, limit)
	if err != nil {
		webLogger().Error().Err(err).Msg("Failed to get receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"summary":  state.Summarize(receipts),
		"count":    len(receipts),
		"limit":    limit,
	})
}

// parseLimit reads ?limit=, accepting 1..200.
func parseLimit(r *http.Request, def int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 200 {
			return parsed
		}
	}
	return def
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger().Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		webLogger().Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
