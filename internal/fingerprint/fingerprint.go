// Package fingerprint builds the order-independent input hashes that tie an
// EOO or AOO result to the exact occurrences (and cell size) it was computed
// from.
package fingerprint

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/extent-cli/internal/model"
)

// Decimals is the coordinate precision that participates in the hash.
const Decimals = 6

var labelEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`, "\n", `\n`)

// row is one normalized computable occurrence.
type row struct {
	lat   float64
	lon   float64
	label string
}

// Round rounds v half away from zero at the given number of decimals, nudged
// by one ulp-scale epsilon so values like 1.0000005 do not round down.
func Round(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	sign := 0.0
	switch {
	case v > 0:
		sign = 1
	case v < 0:
		sign = -1
	}
	adjusted := (v + sign*epsilon) * factor
	return math.Floor(adjusted+0.5) / factor
}

// epsilon matches the machine epsilon of a float64 (2^-52).
const epsilon = 2.220446049250313e-16

func normalize(occurrences []model.Occurrence) []row {
	computable := model.SelectComputable(occurrences)
	rows := make([]row, 0, len(computable))
	for _, o := range computable {
		rows = append(rows, row{
			lat:   Round(o.Lat, Decimals),
			lon:   Round(o.Lon, Decimals),
			label: strings.TrimSpace(o.Label),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].lat != rows[j].lat {
			return rows[i].lat < rows[j].lat
		}
		if rows[i].lon != rows[j].lon {
			return rows[i].lon < rows[j].lon
		}
		return rows[i].label < rows[j].label
	})
	return rows
}

func formatFixed(v float64) string {
	return strconv.FormatFloat(v, 'f', Decimals, 64)
}

// CanonicalRows returns the sorted "lat|lon|label" lines for the computable
// subset of occurrences.
func CanonicalRows(occurrences []model.Occurrence) []string {
	rows := normalize(occurrences)
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, formatFixed(r.lat)+"|"+formatFixed(r.lon)+"|"+labelEscaper.Replace(r.label))
	}
	return lines
}

// EOOCanonical is the byte string hashed for EOO results.
func EOOCanonical(occurrences []model.Occurrence) string {
	return strings.Join(CanonicalRows(occurrences), "\n")
}

// AOOCanonical is the byte string hashed for AOO results. The cell size line
// keeps it in a separate namespace from EOOCanonical.
func AOOCanonical(occurrences []model.Occurrence, cellSizeMeters float64) string {
	return "cellSizeMeters=" + formatFixed(Round(cellSizeMeters, Decimals)) + "\n" +
		strings.Join(CanonicalRows(occurrences), "\n")
}

// FNV1a32 returns the 32-bit FNV-1a digest of s as 8 lowercase hex digits.
func FNV1a32(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// EOO fingerprints the occurrences that an EOO computation would use.
func EOO(occurrences []model.Occurrence) string {
	return FNV1a32(EOOCanonical(occurrences))
}

// AOO fingerprints the occurrences and cell size of an AOO computation.
func AOO(occurrences []model.Occurrence, cellSizeMeters float64) string {
	return FNV1a32(AOOCanonical(occurrences, cellSizeMeters))
}
