package store

import (
	"encoding/binary"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/extent-cli/internal/geo"
	"github.com/sells-group/extent-cli/internal/model"
)

// SRID of stored hull geometries (WGS 84 lon/lat).
const SRID = 4326

// encodeHull returns the hull as EWKB, or nil when there is none.
func encodeHull(r model.Ring) ([]byte, error) {
	if len(r) == 0 {
		return nil, nil
	}
	p := geo.PolygonFromRing(r).SetSRID(SRID)
	b, err := ewkb.Marshal(p, binary.LittleEndian)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode hull")
	}
	return b, nil
}

func decodeHull(b []byte) (model.Ring, error) {
	if len(b) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(b)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode hull")
	}
	p, ok := g.(*geom.Polygon)
	if !ok {
		return nil, eris.Errorf("store: hull is %T, want polygon", g)
	}
	return geo.RingFromPolygon(p), nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: encode json")
	}
	return string(b), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return eris.Wrap(json.Unmarshal([]byte(s), v), "store: decode json")
}
