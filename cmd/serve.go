package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-report/internal/enrich"
	"github.com/sells-group/crm-report/internal/insight"
	"github.com/sells-group/crm-report/internal/leadstats"
	"github.com/sells-group/crm-report/internal/model"
	"github.com/sells-group/crm-report/internal/store"
)

var servePort int

// serverDeps carries the services the HTTP handlers dispatch to. Optional
// services left nil answer 503 on their routes.
type serverDeps struct {
	enricher *enrich.Enricher
	leads    *leadstats.Service
	insights *insight.Service
	store    store.Store

	defaultLeadDept string
	targetTablets   int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reports and insights over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		sf, err := initSalesforce()
		if err != nil {
			return err
		}
		enricher, err := newEnricher(sf)
		if err != nil {
			return err
		}

		deps := serverDeps{
			enricher:        enricher,
			leads:           leadstats.New(sf),
			defaultLeadDept: cfg.Leads.OwnerDepartment,
			targetTablets:   cfg.Insight.TargetTablets,
		}
		if cfg.Anthropic.Key != "" {
			llm, err := initAnthropic()
			if err != nil {
				return err
			}
			deps.insights = insight.New(sf, llm, insight.WithModel(cfg.Anthropic.Model))
		} else {
			deps.insights = insight.New(sf, nil)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		deps.store = st

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(deps, cfg.Server.AllowedOrigins),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func buildRouter(deps serverDeps, allowedOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/contracts", deps.handleContracts)
		r.Get("/leads/daily-by-owner", deps.handleLeadsDaily)
		r.Get("/leads/count-by-owner", deps.handleLeadsCount)
		r.Get("/metrics/monthly", deps.handleMetrics)
		r.Post("/insights", deps.handleInsights)
		r.Get("/snapshots", deps.handleSnapshots)
	})

	return r
}

// deptParam accepts the short and long forms of the department filter.
func deptParam(q url.Values) string {
	if v := q.Get("dept"); v != "" {
		return v
	}
	return q.Get("ownerDept")
}

func (d serverDeps) handleContracts(w http.ResponseWriter, r *http.Request) {
	if d.enricher == nil {
		writeError(w, http.StatusServiceUnavailable, "contract enrichment is not configured")
		return
	}

	q := r.URL.Query()
	records, err := d.enricher.EnrichContracts(r.Context(), enrich.Filter{
		Month:     q.Get("month"),
		Start:     q.Get("start"),
		End:       q.Get("end"),
		OwnerDept: deptParam(q),
	})
	if err != nil {
		writeUpstreamError(w, "enrich contracts", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (d serverDeps) leadFilter(r *http.Request) (leadstats.Filter, error) {
	q := r.URL.Query()
	f := leadstats.Filter{
		Month:     q.Get("month"),
		Start:     q.Get("start"),
		End:       q.Get("end"),
		OwnerDept: deptParam(q),
	}
	if f.OwnerDept == "" {
		f.OwnerDept = d.defaultLeadDept
	}
	switch q.Get("converted") {
	case "":
	case "true", "false":
		converted := q.Get("converted") == "true"
		f.IsConverted = &converted
	default:
		return f, eris.New("converted must be true or false")
	}
	return f, nil
}

func (d serverDeps) handleLeadsDaily(w http.ResponseWriter, r *http.Request) {
	if d.leads == nil {
		writeError(w, http.StatusServiceUnavailable, "lead statistics are not configured")
		return
	}

	f, err := d.leadFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := d.leads.DailyByOwner(r.Context(), f)
	if err != nil {
		writeUpstreamError(w, "daily lead stats", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (d serverDeps) handleLeadsCount(w http.ResponseWriter, r *http.Request) {
	if d.leads == nil {
		writeError(w, http.StatusServiceUnavailable, "lead statistics are not configured")
		return
	}

	f, err := d.leadFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := d.leads.CountByOwner(r.Context(), f)
	if err != nil {
		writeUpstreamError(w, "lead status counts", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (d serverDeps) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if d.insights == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics are not configured")
		return
	}

	q := r.URL.Query()
	metrics, err := d.insights.ResolveMonthlyMetrics(r.Context(), splitMonths(q.Get("months")), deptParam(q))
	if err != nil {
		writeUpstreamError(w, "monthly metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (d serverDeps) handleInsights(w http.ResponseWriter, r *http.Request) {
	if d.insights == nil {
		writeError(w, http.StatusServiceUnavailable, "insight generation is not configured")
		return
	}

	var req struct {
		Months        []string `json:"months"`
		TargetTablets int      `json:"targetTablets"`
		OwnerDept     string   `json:"ownerDept"`
	}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.TargetTablets == 0 {
		req.TargetTablets = d.targetTablets
	}

	metrics, err := d.insights.ResolveMonthlyMetrics(r.Context(), req.Months, req.OwnerDept)
	if err != nil {
		writeUpstreamError(w, "monthly metrics", err)
		return
	}

	result, err := d.insights.Generate(r.Context(), metrics, req.TargetTablets, req.OwnerDept)
	if err != nil {
		writeUpstreamError(w, "generate insight", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (d serverDeps) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if d.store == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot store is not configured")
		return
	}

	q := r.URL.Query()
	f := store.ListFilter{Kind: model.SnapshotKind(q.Get("kind"))}
	fmt.Sscanf(q.Get("limit"), "%d", &f.Limit)   //nolint:errcheck
	fmt.Sscanf(q.Get("offset"), "%d", &f.Offset) //nolint:errcheck

	metas, err := d.store.ListSnapshots(r.Context(), f)
	if err != nil {
		writeUpstreamError(w, "list snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, metas)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeUpstreamError maps a service failure to a status: invalid filter
// parameters are the caller's fault (400), anything else is a remote
// failure (502).
func writeUpstreamError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, enrich.ErrInvalidRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	zap.L().Error(action+" failed", zap.Error(err))
	writeError(w, http.StatusBadGateway, action+" failed")
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
