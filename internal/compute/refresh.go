package compute

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/extent-cli/internal/extent"
	"github.com/sells-group/extent-cli/internal/fingerprint"
	"github.com/sells-group/extent-cli/internal/model"
)

// DefaultMaxReschedules bounds how many times a refresh recomputes after its
// inputs changed underneath it.
const DefaultMaxReschedules = 3

// Inputs is what a metric is computed from.
type Inputs struct {
	Occurrences    []model.Occurrence
	CellSizeMeters float64
}

// InputsFunc loads the current inputs. It is called before each computation
// and again when the result is about to be accepted.
type InputsFunc func(ctx context.Context) (Inputs, error)

// Refresher computes a metric and accepts the result only if the inputs it
// was computed from are still current. Concurrent refreshes of the same key
// share one computation.
type Refresher struct {
	svc            *Service
	maxReschedules int
	group          singleflight.Group
	log            *zap.Logger
}

// NewRefresher returns a Refresher. Negative maxReschedules means the default.
func NewRefresher(svc *Service, maxReschedules int) *Refresher {
	if maxReschedules < 0 {
		maxReschedules = DefaultMaxReschedules
	}
	return &Refresher{svc: svc, maxReschedules: maxReschedules, log: svc.log}
}

// EOO refreshes the EOO of key.
func (r *Refresher) EOO(ctx context.Context, key string, load InputsFunc) (*model.EooResult, error) {
	v, err, _ := r.group.Do(key+"|"+string(KindEOO), func() (any, error) {
		return accept(ctx, r, KindEOO, load,
			func(in Inputs) (*model.EooResult, error) { return r.svc.ComputeEOO(ctx, in.Occurrences) },
			func(in Inputs) string { return fingerprint.EOO(in.Occurrences) },
			func(res *model.EooResult) string { return res.InputHash },
		)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.EooResult), nil
}

// AOO refreshes the AOO of key.
func (r *Refresher) AOO(ctx context.Context, key string, load InputsFunc) (*model.AooResult, error) {
	v, err, _ := r.group.Do(key+"|"+string(KindAOO), func() (any, error) {
		return accept(ctx, r, KindAOO, load,
			func(in Inputs) (*model.AooResult, error) {
				return r.svc.ComputeAOO(ctx, in.Occurrences, in.CellSizeMeters)
			},
			func(in Inputs) string { return fingerprint.AOO(in.Occurrences, in.CellSizeMeters) },
			func(res *model.AooResult) string { return res.InputHash },
		)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.AooResult), nil
}

func accept[T any](
	ctx context.Context,
	r *Refresher,
	kind Kind,
	load InputsFunc,
	compute func(Inputs) (T, error),
	currentHash func(Inputs) string,
	resultHash func(T) string,
) (T, error) {
	var zero T
	for attempt := 0; attempt <= r.maxReschedules; attempt++ {
		in, err := load(ctx)
		if err != nil {
			return zero, eris.Wrap(err, "compute: load inputs")
		}
		res, err := compute(in)
		if err != nil {
			return zero, err
		}

		now, err := load(ctx)
		if err != nil {
			return zero, eris.Wrap(err, "compute: reload inputs")
		}
		if currentHash(now) == resultHash(res) {
			return res, nil
		}
		r.log.Info("inputs changed during computation, rescheduling",
			zap.String("type", string(kind)),
			zap.Int("attempt", attempt+1),
		)
	}
	return zero, eris.Wrapf(ErrStaleResponse, "%s inputs kept changing after %d reschedules", kind, r.maxReschedules)
}

// ProjectStore is the persistence a project refresh needs.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	SaveEooResult(ctx context.Context, projectID string, res *model.EooResult) error
	SaveAooResult(ctx context.Context, projectID string, res *model.AooResult) error
}

// RefreshReport describes one project refresh.
type RefreshReport struct {
	ProjectID   string           `json:"project_id"`
	EooComputed bool             `json:"eoo_computed"`
	AooComputed bool             `json:"aoo_computed"`
	Eoo         *model.EooResult `json:"eoo,omitempty"`
	Aoo         *model.AooResult `json:"aoo,omitempty"`
}

// RefreshOptions selects what RefreshProject recomputes.
type RefreshOptions struct {
	// Force recomputes fresh metrics too.
	Force bool
	// Kinds limits the metrics considered. Empty means both.
	Kinds []Kind
}

func (o RefreshOptions) wants(k Kind) bool {
	return len(o.Kinds) == 0 || slices.Contains(o.Kinds, k)
}

// RefreshProject recomputes the selected metrics of a stored project that are
// stale, or all of them with Force, and saves the accepted results. The two
// metrics run concurrently.
func (r *Refresher) RefreshProject(ctx context.Context, st ProjectStore, id string, opts RefreshOptions) (*RefreshReport, error) {
	p, err := st.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	stale := extent.ProjectStaleness(p)

	load := func(ctx context.Context) (Inputs, error) {
		cur, err := st.GetProject(ctx, id)
		if err != nil {
			return Inputs{}, err
		}
		return Inputs{Occurrences: cur.Occurrences, CellSizeMeters: cur.CellSize()}, nil
	}

	report := &RefreshReport{ProjectID: id, Eoo: p.Results.Eoo, Aoo: p.Results.Aoo}
	g, gctx := errgroup.WithContext(ctx)
	if opts.wants(KindEOO) && (opts.Force || stale.Eoo) {
		g.Go(func() error {
			res, err := r.EOO(gctx, id, load)
			if err != nil {
				return err
			}
			if err := st.SaveEooResult(gctx, id, res); err != nil {
				return err
			}
			report.Eoo, report.EooComputed = res, true
			return nil
		})
	}
	if opts.wants(KindAOO) && (opts.Force || stale.Aoo) {
		g.Go(func() error {
			res, err := r.AOO(gctx, id, load)
			if err != nil {
				return err
			}
			if err := st.SaveAooResult(gctx, id, res); err != nil {
				return err
			}
			report.Aoo, report.AooComputed = res, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "compute: refresh project %s", id)
	}
	return report, nil
}
