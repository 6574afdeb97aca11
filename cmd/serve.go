package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/deal-engine/internal/dedup"
	"github.com/sells-group/deal-engine/internal/ledger"
	"github.com/sells-group/deal-engine/internal/model"
	"github.com/sells-group/deal-engine/internal/rules"
	"github.com/sells-group/deal-engine/internal/store"
)

const (
	maxBodyBytes    = 10 << 20
	shutdownTimeout = 15 * time.Second
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "serve", true)
		if err != nil {
			return err
		}
		defer env.Close()

		return startServer(ctx, newRouter(env), resolvePort(servePort, cfg.Server.Port))
	},
}

// resolvePort prefers the --port flag over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer serves h on port until ctx is done, then shuts down
// gracefully.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "server listen")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}

type api struct {
	env *engineEnv
}

// newRouter builds the HTTP API over env.
func newRouter(env *engineEnv) http.Handler {
	a := &api{env: env}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(env.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/reconcile", a.reconcile)
		r.Post("/audit", a.audit)
		r.Post("/match", a.match)
		r.Get("/reports/{id}", a.getReport)

		r.Get("/rejections", a.listRejections)
		r.Post("/rejections/{id}/override", a.overrideRejection)

		r.Post("/dedup/check", a.dedupCheck)
		r.Delete("/dedup", a.dedupPurge)

		r.Get("/rules", a.listRules)
		r.Post("/rules", a.addRule)
		r.Delete("/rules/{id}", a.removeRule)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err and hides it from the client.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) reconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address  string             `json:"address"`
		Declared map[string]float64 `json:"declared"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	result, err := a.env.Reconciler.Reconcile(r.Context(), req.Address, req.Declared)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) audit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Candidates []*model.Property `json:"candidates"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	batch, err := a.env.Pipeline.Run(r.Context(), req.Candidates)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (a *api) match(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Property   *model.Property       `json:"property"`
		BuyBox     *model.BuyBoxCriteria `json:"buybox"`
		InvestorID string                `json:"investor_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Property == nil {
		writeError(w, http.StatusBadRequest, "property is required")
		return
	}
	locate(r.Context(), a.env.Matcher, req.Property)
	if req.BuyBox != nil {
		writeJSON(w, http.StatusOK, a.env.Matcher.Match(req.Property, req.BuyBox))
		return
	}
	boxes, err := a.env.Store.ListActiveBuyBoxes(r.Context(), req.InvestorID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.env.Matcher.Rank(req.Property, boxes))
}

func (a *api) listRejections(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RejectionFilter{
		Status: model.AuditStatus(q.Get("status")),
		Agent:  q.Get("agent"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	items, err := a.env.Ledger.List(r.Context(), filter)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func (a *api) overrideRejection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OperatorID string `json:"operator_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := a.env.Ledger.Override(r.Context(), chi.URLParam(r, "id"), req.OperatorID)
	switch {
	case errors.Is(err, ledger.ErrOperatorRequired):
		writeError(w, http.StatusBadRequest, "operator_id is required")
	case errors.Is(err, ledger.ErrNotOverridable):
		writeError(w, http.StatusConflict, "item is not overridable")
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "item not found")
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, item)
	}
}

func (a *api) dedupCheck(w http.ResponseWriter, r *http.Request) {
	var p model.Property
	if !decodeBody(w, r, &p) {
		return
	}
	seen, err := a.env.Dedup.IsDuplicate(r.Context(), &p)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fingerprint": dedup.PropertyFingerprint(&p),
		"duplicate":   seen,
	})
}

func (a *api) dedupPurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := a.env.Dedup.Size(ctx)
	if err != nil {
		internalError(w, r, err)
		return
	}
	err = a.env.Dedup.Purge(ctx, r.URL.Query().Get("operator"))
	switch {
	case errors.Is(err, dedup.ErrOperatorRequired):
		writeError(w, http.StatusBadRequest, "operator is required")
	case err != nil:
		internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]int64{"purged": n})
	}
}

func (a *api) listRules(w http.ResponseWriter, r *http.Request) {
	list, err := a.env.Store.ListDomainRules(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) addRule(w http.ResponseWriter, r *http.Request) {
	var req model.DomainRule
	if !decodeBody(w, r, &req) {
		return
	}
	if err := rules.ValidateRule(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rule, err := addRule(r.Context(), a.env.Store, req)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if err := a.env.ReloadRules(r.Context()); err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (a *api) removeRule(w http.ResponseWriter, r *http.Request) {
	err := a.env.Store.RemoveDomainRule(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "rule not found")
		return
	case err != nil:
		internalError(w, r, err)
		return
	}
	if err := a.env.ReloadRules(r.Context()); err != nil {
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) getReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := a.env.Store.GetAuditReport(ctx, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "report not found")
		return
	case err != nil:
		internalError(w, r, err)
		return
	}
	item, err := a.overrideFor(ctx, report)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report":      report,
		"publishable": ledger.Approved(report, item),
	})
}

// overrideFor returns the overridden ledger item for a failed report, if any.
func (a *api) overrideFor(ctx context.Context, report *model.AuditReport) (*model.RejectedItem, error) {
	if report.Pass {
		return nil, nil
	}
	items, err := a.env.Ledger.List(ctx, store.RejectionFilter{
		Status:   model.AuditStatusOverridden,
		ReportID: report.ID,
		Limit:    1,
	})
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
