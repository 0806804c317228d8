package main

import (
	"context"
	"net/http"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/extent-cli/internal/compute"
	"github.com/sells-group/extent-cli/internal/extent"
	"github.com/sells-group/extent-cli/internal/resilience"
	"github.com/sells-group/extent-cli/internal/store"
)

var (
	computeProjectID string
	computeAll       bool
	computeMetric    string
	computeForce     bool
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Recompute stale EOO/AOO results for one project or all of them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if computeAll == (computeProjectID != "") {
			return eris.New("exactly one of --project or --all is required")
		}
		kinds, err := parseMetric(computeMetric)
		if err != nil {
			return err
		}
		if err := cfg.Validate("compute"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, closeSvc := newComputeService()
		defer closeSvc()
		refresher := compute.NewRefresher(svc, cfg.Compute.MaxReschedules)
		opts := compute.RefreshOptions{Force: computeForce, Kinds: kinds}

		if !computeAll {
			report, err := refresher.RefreshProject(ctx, st, computeProjectID, opts)
			if err != nil {
				return err
			}
			logRefresh(report)
			return writeJSON(cmd.OutOrStdout(), report)
		}

		reports, err := refreshAll(ctx, st, refresher, opts, cfg.Compute.MaxConcurrentProjects)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), reports)
	},
}

func init() {
	f := computeCmd.Flags()
	f.StringVarP(&computeProjectID, "project", "p", "", "project id")
	f.BoolVar(&computeAll, "all", false, "refresh every project")
	f.StringVar(&computeMetric, "metric", "all", "eoo|aoo|all")
	f.BoolVar(&computeForce, "force", false, "recompute fresh results too")
	rootCmd.AddCommand(computeCmd)
}

func parseMetric(s string) ([]compute.Kind, error) {
	switch s {
	case "", "all":
		return nil, nil
	case string(compute.KindEOO):
		return []compute.Kind{compute.KindEOO}, nil
	case string(compute.KindAOO):
		return []compute.Kind{compute.KindAOO}, nil
	default:
		return nil, eris.Errorf("unknown metric %q (want eoo, aoo or all)", s)
	}
}

// newComputeService wires the configured transport. Without a worker URL,
// requests go to an in-process worker; with one, they go over HTTP behind a
// circuit breaker. Either way a failed request falls back to local
// computation.
func newComputeService() (*compute.Service, func()) {
	engine := extent.NewEngine()
	timeout := time.Duration(cfg.Compute.WorkerTimeoutSecs) * time.Second

	if cfg.Compute.WorkerURL == "" {
		local := compute.NewLocalWorker(engine, cfg.Compute.MaxConcurrentProjects)
		svc := compute.NewService(engine,
			compute.WithTransport(local),
			compute.WithTimeout(timeout),
		)
		return svc, local.Close
	}

	r := cfg.Resilience
	bcfg := resilience.BreakerConfigFrom(r.FailureThreshold, r.ResetTimeoutSecs)
	bcfg.OnStateChange = func(from, to resilience.State) {
		zap.L().Warn("compute: worker circuit state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	transport := compute.NewHTTPTransport(cfg.Compute.WorkerURL, &http.Client{},
		resilience.RetryPolicyFrom(r.MaxAttempts, r.InitialBackoffMs))

	svc := compute.NewService(engine,
		compute.WithTransport(transport),
		compute.WithBreaker(resilience.NewBreaker(bcfg)),
		compute.WithTimeout(timeout),
	)
	return svc, func() {}
}

// refreshAll refreshes every project with bounded concurrency. A failing
// project is logged and skipped; the rest still run.
func refreshAll(ctx context.Context, st store.Store, r *compute.Refresher, opts compute.RefreshOptions, concurrency int) ([]*compute.RefreshReport, error) {
	projects, err := st.ListProjects(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "list projects")
	}
	if len(projects) == 0 {
		zap.L().Info("no projects found")
		return []*compute.RefreshReport{}, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("refreshing projects",
		zap.Int("projects", len(projects)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		mu        sync.Mutex
		reports   = make([]*compute.RefreshReport, 0, len(projects))
		succeeded atomic.Int64
		failed    atomic.Int64
	)
	for _, p := range projects {
		g.Go(func() error {
			report, err := r.RefreshProject(gctx, st, p.ID, opts)
			if err != nil {
				failed.Add(1)
				zap.L().Error("refresh failed", zap.String("project", p.ID), zap.Error(err))
				return nil // don't abort the run on one project
			}
			succeeded.Add(1)
			logRefresh(report)
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(reports, func(a, b *compute.RefreshReport) int {
		return strings.Compare(a.ProjectID, b.ProjectID)
	})

	zap.L().Info("refresh complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return reports, nil
}

func logRefresh(r *compute.RefreshReport) {
	fields := []zap.Field{
		zap.String("project", r.ProjectID),
		zap.Bool("eoo_computed", r.EooComputed),
		zap.Bool("aoo_computed", r.AooComputed),
	}
	if r.Eoo != nil {
		fields = append(fields, zap.Float64("eoo_km2", r.Eoo.AreaKm2))
	}
	if r.Aoo != nil {
		fields = append(fields, zap.Float64("aoo_km2", r.Aoo.AreaKm2))
	}
	zap.L().Info("project refreshed", fields...)
}
