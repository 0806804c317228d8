package report

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/extent-cli/internal/iucn"
)

// WriteText renders r as a short human-readable summary.
func WriteText(w io.Writer, r *Report) error {
	p := message.NewPrinter(language.English)
	ew := &errWriter{w: w, p: p}

	ew.printf("Project: %s (%s)\n", r.Project.Name, r.Project.ID)
	ew.printf("Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	ew.printf("AOO cell size: %v m\n", r.Settings.AooCellSizeMeters)
	s := r.Occurrences
	ew.printf("Occurrences: %d total, %d valid, %d invalid, %d at (0,0), %d disabled, %d used\n",
		s.Total, s.Valid, s.Invalid, s.ZeroZero, s.Disabled, s.Computable)

	if r.Eoo != nil {
		ew.printf("EOO: %s km² from %d points [%s]%s\n",
			iucn.FormatKm2In(p, r.Eoo.AreaKm2), r.Eoo.PointsUsed, r.Eoo.InputHash, staleMark(r.Eoo.Stale))
	} else {
		ew.printf("EOO: not computed\n")
	}
	if r.Aoo != nil {
		ew.printf("AOO: %s km² (%d cells) from %d points [%s]%s\n",
			iucn.FormatKm2In(p, r.Aoo.AreaKm2), r.Aoo.CellCount, r.Aoo.PointsUsed, r.Aoo.InputHash, staleMark(r.Aoo.Stale))
	} else {
		ew.printf("AOO: not computed\n")
	}

	cb := r.CriterionB
	ew.printf("Criterion B: %s", cb.SuggestedCategory)
	if cb.SuggestedCode != "" {
		ew.printf(" (%s)", cb.SuggestedCode)
	}
	ew.printf("\n")
	for _, n := range cb.Notes {
		ew.printf("  - %s\n", n)
	}
	return ew.err
}

func staleMark(stale bool) string {
	if stale {
		return " STALE"
	}
	return ""
}

// errWriter keeps the first write error and skips later writes.
type errWriter struct {
	w   io.Writer
	p   *message.Printer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	if _, err := e.p.Fprintf(e.w, format, args...); err != nil {
		e.err = eris.Wrap(err, "report: write")
	}
}
