// Package compute runs EOO/AOO computations through an optional worker
// transport and falls back to the in-process engine when the worker fails.
package compute

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/extent-cli/internal/extent"
	"github.com/sells-group/extent-cli/internal/model"
)

// Kind names the metric a request computes.
type Kind string

const (
	KindEOO Kind = "eoo"
	KindAOO Kind = "aoo"
)

// Valid reports whether k is a known metric.
func (k Kind) Valid() bool { return k == KindEOO || k == KindAOO }

// Sentinel errors. Transport failures are absorbed by Service; callers only
// see them from a Transport directly.
var (
	ErrTransport        = eris.New("compute: transport failure")
	ErrResponseMismatch = eris.New("compute: response does not match request")
	ErrStaleResponse    = eris.New("compute: stale response discarded")
)

// OccurrenceDTO is the plain form of an occurrence sent to a worker.
type OccurrenceDTO struct {
	ID         string  `json:"id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Label      string  `json:"label,omitempty"`
	CalcStatus string  `json:"calc_status"`
}

// Payload is the body of a request.
type Payload struct {
	Occurrences    []OccurrenceDTO `json:"occurrences"`
	CellSizeMeters float64         `json:"cell_size_meters,omitempty"`
}

// Request is one unit of work for a worker.
type Request struct {
	ID      string  `json:"id"`
	Type    Kind    `json:"type"`
	Payload Payload `json:"payload"`
}

// Response answers a Request. Result holds an EooResult or AooResult when OK.
type Response struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Type   Kind            `json:"type"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Transport delivers a request to a worker and returns its response. An
// error means the worker could not be reached or answered garbage; a
// response with OK false is a computation error reported by the worker.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// NewRequest builds a request with a fresh correlation id. Occurrences whose
// coordinates cannot be represented in JSON are dropped; they are never
// computable, so results are unaffected.
func NewRequest(kind Kind, occurrences []model.Occurrence, cellSizeMeters float64) Request {
	dtos := make([]OccurrenceDTO, 0, len(occurrences))
	for _, o := range occurrences {
		if !o.Representable() {
			continue
		}
		dtos = append(dtos, OccurrenceDTO{
			ID:         o.ID,
			Lat:        o.Lat,
			Lon:        o.Lon,
			Label:      o.Label,
			CalcStatus: string(o.CalcStatus),
		})
	}

	req := Request{ID: uuid.NewString(), Type: kind, Payload: Payload{Occurrences: dtos}}
	if kind == KindAOO {
		req.Payload.CellSizeMeters = cellSizeMeters
	}
	return req
}

// ToOccurrences converts the payload back to domain occurrences.
func (p Payload) ToOccurrences() []model.Occurrence {
	out := make([]model.Occurrence, len(p.Occurrences))
	for i, d := range p.Occurrences {
		status := model.CalcStatus(d.CalcStatus)
		if status == "" {
			status = model.CalcStatusEnabled
		}
		out[i] = model.Occurrence{ID: d.ID, Lat: d.Lat, Lon: d.Lon, Label: d.Label, CalcStatus: status}
	}
	return out
}

// Handle runs req on engine. It is the worker side of the contract, shared by
// the in-process and HTTP workers.
func Handle(engine *extent.Engine, req Request) Response {
	resp := Response{ID: req.ID, Type: req.Type}

	var (
		result any
		err    error
	)
	occs := req.Payload.ToOccurrences()
	switch req.Type {
	case KindEOO:
		result = engine.ComputeEOO(occs)
	case KindAOO:
		result, err = engine.ComputeAOO(occs, req.Payload.CellSizeMeters)
	default:
		err = eris.Errorf("compute: unknown request type %q", req.Type)
	}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = eris.Wrap(err, "compute: encode result").Error()
		return resp
	}
	resp.OK = true
	resp.Result = raw
	return resp
}

// checkResponse verifies resp answers req.
func checkResponse(req Request, resp Response) error {
	if resp.ID != req.ID {
		return eris.Wrapf(ErrResponseMismatch, "id %q, want %q", resp.ID, req.ID)
	}
	if resp.Type != req.Type {
		return eris.Wrapf(ErrResponseMismatch, "type %q, want %q", resp.Type, req.Type)
	}
	if !resp.OK {
		return eris.Wrapf(ErrTransport, "worker error: %s", resp.Error)
	}
	if len(resp.Result) == 0 {
		return eris.Wrap(ErrResponseMismatch, "empty result")
	}
	return nil
}
