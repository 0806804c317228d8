package ingest

import (
	"bytes"
	"encoding/json"
	"io"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// SourceJSON tags occurrences imported from JSON or GeoJSON.
const SourceJSON = "json"

// ErrUnsupportedJSON is returned for JSON that is neither an array of
// records nor a GeoJSON FeatureCollection.
var ErrUnsupportedJSON = eris.New("ingest: unsupported json document")

// ImportJSON reads either a plain array of {id, label, lat, lon} records or a
// GeoJSON FeatureCollection. Only Point features are considered; other
// geometries are skipped without being counted.
func ImportJSON(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read json")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrUnsupportedJSON
	}

	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, eris.Wrap(err, "ingest: decode json array")
		}
		cands := make([]candidate, len(items))
		for i, raw := range items {
			cands[i] = recordCandidate(raw)
		}
		return build(cands, SourceJSON), nil
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrap(err, "ingest: decode json")
	}
	if head.Type != "FeatureCollection" {
		return nil, ErrUnsupportedJSON
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "ingest: decode geojson")
	}
	cands := make([]candidate, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		pt, ok := f.Geometry.(*geom.Point)
		if !ok {
			continue
		}
		c := candidate{lat: math.NaN(), lon: math.NaN()}
		if !pt.Empty() {
			c.lon, c.lat = pt.X(), pt.Y()
		}
		c.id = stringProp(f.Properties, "id")
		if c.id == "" {
			c.id = f.ID
		}
		c.label = stringProp(f.Properties, "label")
		cands = append(cands, c)
	}
	return build(cands, SourceJSON), nil
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

// recordCandidate reads one array element. Anything that is not an object
// becomes a candidate with no coordinates.
func recordCandidate(raw json.RawMessage) candidate {
	c := candidate{lat: math.NaN(), lon: math.NaN()}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
		return c
	}
	c.id = stringProp(rec, "id")
	c.label = stringProp(rec, "label")
	c.lat = anyCoordinate(rec["lat"])
	c.lon = anyCoordinate(rec["lon"])
	return c
}

func anyCoordinate(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		return ParseCoordinate(x)
	default:
		return math.NaN()
	}
}
