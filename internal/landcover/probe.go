package landcover

import "context"

// ProbeReport describes how one source sees a point.
type ProbeReport struct {
	Source   string    `json:"source"`
	CRS      string    `json:"crs,omitempty"`
	Width    int       `json:"width,omitempty"`
	Height   int       `json:"height,omitempty"`
	Bounds   []float64 `json:"bounds,omitempty"` // min_x, min_y, max_x, max_y
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Inside   bool      `json:"inside"`
	Row      int       `json:"row,omitempty"`
	Col      int       `json:"col,omitempty"`
	Window   []int     `json:"window,omitempty"`
	Majority int       `json:"majority,omitempty"`
	Label    string    `json:"label,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Probe reports, for every source, whether it contains the point and what the
// sampling window around it holds. It never stops at the first hit.
func Probe(ctx context.Context, sources []Source, lat, lon float64) []ProbeReport {
	reports := make([]ProbeReport, 0, len(sources))
	for _, src := range sources {
		reports = append(reports, probeSource(ctx, src, lat, lon))
	}
	return reports
}

func probeSource(ctx context.Context, src Source, lat, lon float64) ProbeReport {
	rep := ProbeReport{Source: src.Name()}
	r, err := src.Open(ctx)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	defer r.Close() //nolint:errcheck

	b := r.Bounds()
	rep.CRS = r.CRS().String()
	rep.Width, rep.Height = r.Size()
	rep.Bounds = []float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}

	rep.X, rep.Y, err = r.CRS().Project(lat, lon)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	rep.Inside = Contains(r, rep.X, rep.Y)
	if !rep.Inside {
		return rep
	}

	rep.Row, rep.Col = Index(r, rep.X, rep.Y)
	rep.Window, err = Sample(ctx, r, rep.Row, rep.Col)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	if code, ok := Majority(rep.Window); ok {
		rep.Majority = code
		rep.Label = Label(code)
	}
	return rep
}
