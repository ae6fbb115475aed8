package rules

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/swc-cli/internal/model"
)

// DefaultTableName is the embedded ICAR table 4.1 of mechanical measures.
const DefaultTableName = "icar_table_4_1_mechanical_measures.json"

//go:embed data/*.json
var embedded embed.FS

// LoadError reports a malformed rule. Loading stops at the first one.
type LoadError struct {
	Index    int // zero-based position in the table
	Practice string
	Reason   string
}

func (e *LoadError) Error() string {
	if e.Practice == "" {
		return fmt.Sprintf("rules: rule #%d: %s", e.Index+1, e.Reason)
	}
	return fmt.Sprintf("rules: rule %q (#%d): %s", e.Practice, e.Index+1, e.Reason)
}

// rawRule is the flat on-disk shape. "measure" is accepted as a synonym for
// "practice" because older tables use it.
type rawRule struct {
	Practice    string    `json:"practice" yaml:"practice"`
	Measure     string    `json:"measure" yaml:"measure"`
	SlopeMax    *float64  `json:"slope_max" yaml:"slope_max"`
	SlopeRange  []float64 `json:"slope_range" yaml:"slope_range"`
	RainfallMin *float64  `json:"rainfall_min" yaml:"rainfall_min"`
	RainfallMax *float64  `json:"rainfall_max" yaml:"rainfall_max"`
	SoilDepth   []string  `json:"soil_depth" yaml:"soil_depth"`
	Drainage    []string  `json:"drainage" yaml:"drainage"`
	LandUse     []string  `json:"land_use" yaml:"land_use"`
}

// Format selects the decoder for Parse.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a Format from a file extension. Anything that is not
// .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and validates a rule table file.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}
	t, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, err
	}
	zap.L().Debug("rules: loaded table", zap.String("path", path), zap.Int("rules", len(t)))
	return t, nil
}

// Default returns the embedded ICAR table.
func Default() (Table, error) {
	data, err := embedded.ReadFile("data/" + DefaultTableName)
	if err != nil {
		return nil, eris.Wrap(err, "rules: read embedded table")
	}
	return Parse(data, FormatJSON)
}

// LoadOrDefault loads path, or the embedded table when path is empty. The
// second return value names the source for logging.
func LoadOrDefault(path string) (Table, string, error) {
	if path == "" {
		t, err := Default()
		return t, "embedded:" + DefaultTableName, err
	}
	t, err := Load(path)
	return t, path, err
}

// Parse decodes a table that is either a bare list of rules or an object with
// a "rules" list, then validates every rule. A table without rules is an
// error.
func Parse(data []byte, format Format) (Table, error) {
	raws, err := decode(data, format)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, eris.New("rules: table has no rules")
	}
	t := make(Table, 0, len(raws))
	for i, raw := range raws {
		r, err := raw.toRule(i)
		if err != nil {
			return nil, err
		}
		t = append(t, r)
	}
	return t, nil
}

func decode(data []byte, format Format) ([]rawRule, error) {
	var wrapper struct {
		Rules *[]rawRule `json:"rules" yaml:"rules"`
	}
	var raws []rawRule

	switch format {
	case FormatYAML:
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, eris.Wrap(err, "rules: parse yaml")
		}
		if len(doc.Content) == 0 {
			return nil, eris.New("rules: empty table")
		}
		root := doc.Content[0]
		if root.Kind == yaml.SequenceNode {
			if err := root.Decode(&raws); err != nil {
				return nil, eris.Wrap(err, "rules: decode yaml")
			}
			return raws, nil
		}
		if err := root.Decode(&wrapper); err != nil {
			return nil, eris.Wrap(err, "rules: decode yaml")
		}
	default:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			return nil, eris.New("rules: empty table")
		}
		if trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &raws); err != nil {
				return nil, eris.Wrap(err, "rules: parse json")
			}
			return raws, nil
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, eris.Wrap(err, "rules: parse json")
		}
	}
	if wrapper.Rules == nil {
		return nil, eris.New(`rules: object has no "rules" list`)
	}
	return *wrapper.Rules, nil
}

func (raw rawRule) toRule(i int) (Rule, error) {
	practice := strings.TrimSpace(raw.Practice)
	if practice == "" {
		practice = strings.TrimSpace(raw.Measure)
	}
	fail := func(format string, args ...any) (Rule, error) {
		return Rule{}, &LoadError{Index: i, Practice: practice, Reason: fmt.Sprintf(format, args...)}
	}

	if practice == "" {
		return fail("missing practice")
	}
	if len(raw.SoilDepth) == 0 {
		return fail("missing or empty soil_depth")
	}
	if len(raw.LandUse) == 0 {
		return fail("missing or empty land_use")
	}

	r := Rule{
		Practice:    practice,
		SlopeMax:    raw.SlopeMax,
		RainfallMin: raw.RainfallMin,
		RainfallMax: raw.RainfallMax,
	}

	if raw.SlopeRange != nil {
		if len(raw.SlopeRange) != 2 {
			return fail("slope_range must have exactly two values, got %d", len(raw.SlopeRange))
		}
		if raw.SlopeRange[0] > raw.SlopeRange[1] {
			return fail("slope_range low %.2f exceeds high %.2f", raw.SlopeRange[0], raw.SlopeRange[1])
		}
		r.SlopeRange = &Range{Low: raw.SlopeRange[0], High: raw.SlopeRange[1]}
	}

	for _, s := range raw.SoilDepth {
		sd := model.ParseSoilDepth(s)
		if !sd.Known() {
			return fail("unknown soil_depth %q", s)
		}
		r.SoilDepth = append(r.SoilDepth, sd)
	}

	if raw.Drainage != nil {
		r.Drainage = make([]model.Drainage, 0, len(raw.Drainage))
		for _, s := range raw.Drainage {
			d := model.ParseDrainage(s)
			if !d.Known() {
				return fail("unknown drainage %q", s)
			}
			r.Drainage = append(r.Drainage, d)
		}
	}

	for _, s := range raw.LandUse {
		lu, ok := model.ParseLandUse(s)
		if !ok {
			return fail("blank land_use entry")
		}
		r.LandUse = append(r.LandUse, lu)
	}

	return r, nil
}
