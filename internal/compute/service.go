package compute

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/extent-cli/internal/extent"
	"github.com/sells-group/extent-cli/internal/fingerprint"
	"github.com/sells-group/extent-cli/internal/geo"
	"github.com/sells-group/extent-cli/internal/model"
	"github.com/sells-group/extent-cli/internal/resilience"
)

// DefaultTimeout bounds a worker round trip.
const DefaultTimeout = 30 * time.Second

// Service computes EOO and AOO, preferring the configured worker transport
// and falling back to the in-process engine on any transport failure.
type Service struct {
	engine    *extent.Engine
	transport Transport
	breaker   *resilience.Breaker
	timeout   time.Duration
	log       *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTransport routes computations through t.
func WithTransport(t Transport) Option {
	return func(s *Service) { s.transport = t }
}

// WithBreaker guards the transport with b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(s *Service) { s.breaker = b }
}

// WithTimeout sets the worker round-trip bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService returns a Service. Without a transport it computes in-process.
func NewService(engine *extent.Engine, opts ...Option) *Service {
	if engine == nil {
		engine = extent.NewEngine()
	}
	s := &Service{engine: engine, timeout: DefaultTimeout, log: zap.L()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ComputeEOO computes EOO for occurrences.
func (s *Service) ComputeEOO(ctx context.Context, occurrences []model.Occurrence) (*model.EooResult, error) {
	if s.transport != nil {
		var res model.EooResult
		err := s.remote(ctx, NewRequest(KindEOO, occurrences, 0), &res)
		if err == nil {
			if want := fingerprint.EOO(occurrences); res.InputHash == want {
				return &res, nil
			}
			err = eris.Wrapf(ErrResponseMismatch, "input hash %q", res.InputHash)
		}
		s.fallback(KindEOO, err)
	}
	return s.engine.ComputeEOO(occurrences), nil
}

// ComputeAOO computes AOO for occurrences on a grid of cellSizeMeters. An
// invalid cell size fails before any worker is contacted.
func (s *Service) ComputeAOO(ctx context.Context, occurrences []model.Occurrence, cellSizeMeters float64) (*model.AooResult, error) {
	if err := geo.ValidateCellSize(cellSizeMeters); err != nil {
		return nil, err
	}
	if s.transport != nil {
		var res model.AooResult
		err := s.remote(ctx, NewRequest(KindAOO, occurrences, cellSizeMeters), &res)
		if err == nil {
			if want := fingerprint.AOO(occurrences, cellSizeMeters); res.InputHash == want {
				return &res, nil
			}
			err = eris.Wrapf(ErrResponseMismatch, "input hash %q", res.InputHash)
		}
		s.fallback(KindAOO, err)
	}
	return s.engine.ComputeAOO(occurrences, cellSizeMeters)
}

// remote runs req on the transport and decodes the result into out. Any
// response arriving after the timeout is never read.
func (s *Service) remote(ctx context.Context, req Request, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	call := func(ctx context.Context) (Response, error) {
		resp, err := s.transport.Do(ctx, req)
		if err != nil {
			return Response{}, err
		}
		if err := checkResponse(req, resp); err != nil {
			return Response{}, err
		}
		return resp, nil
	}

	var (
		resp Response
		err  error
	)
	if s.breaker != nil {
		resp, err = resilience.Guard(ctx, s.breaker, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Result, out); err != nil {
		return eris.Wrapf(ErrResponseMismatch, "decode %s result: %v", req.Type, err)
	}
	return nil
}

func (s *Service) fallback(kind Kind, err error) {
	s.log.Warn("worker computation failed, computing locally",
		zap.String("type", string(kind)),
		zap.Error(err),
	)
}
