package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LandUse is the declared use of the parcel. The named constants cover the
// uses in the ICAR practice table; any other label is carried through as-is so
// custom rule tables can name their own uses.
type LandUse string

const (
	LandUsePaddy        LandUse = "PADDY"
	LandUseSmallMillets LandUse = "SMALL_MILLETS"
	LandUsePlantation   LandUse = "PLANTATION"
	LandUseVegetables   LandUse = "VEGETABLES"
	LandUseRootCrops    LandUse = "ROOT_CROPS"
	LandUseForest       LandUse = "FOREST"
)

// SoilDepth is the soil depth class.
type SoilDepth string

const (
	SoilDepthShallow  SoilDepth = "SHALLOW"
	SoilDepthModerate SoilDepth = "MODERATE"
	SoilDepthDeep     SoilDepth = "DEEP"
	SoilDepthUnknown  SoilDepth = "UNKNOWN"
)

// Drainage is the soil drainage class.
type Drainage string

const (
	DrainagePoor     Drainage = "POOR"
	DrainageModerate Drainage = "MODERATE"
	DrainageGood     Drainage = "GOOD"
	DrainageUnknown  Drainage = "UNKNOWN"
)

var upper = cases.Upper(language.Und)

// normalizeLabel upper-cases a label and turns spaces and dashes into underscores.
func normalizeLabel(s string) string {
	s = upper.String(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// ParseLandUse normalizes a land use label. It returns false for blank input.
func ParseLandUse(s string) (LandUse, bool) {
	n := normalizeLabel(s)
	if n == "" {
		return "", false
	}
	return LandUse(n), true
}

// ParseSoilDepth maps a label to a SoilDepth. MEDIUM is accepted as an alias
// for MODERATE. Unrecognized labels map to SoilDepthUnknown.
func ParseSoilDepth(s string) SoilDepth {
	switch normalizeLabel(s) {
	case "SHALLOW":
		return SoilDepthShallow
	case "MODERATE", "MEDIUM":
		return SoilDepthModerate
	case "DEEP":
		return SoilDepthDeep
	default:
		return SoilDepthUnknown
	}
}

// ParseDrainage maps a label to a Drainage. Unrecognized labels map to
// DrainageUnknown.
func ParseDrainage(s string) Drainage {
	switch normalizeLabel(s) {
	case "POOR":
		return DrainagePoor
	case "MODERATE":
		return DrainageModerate
	case "GOOD":
		return DrainageGood
	default:
		return DrainageUnknown
	}
}

// Known reports whether d is one of the named soil depth classes.
func (d SoilDepth) Known() bool {
	return d == SoilDepthShallow || d == SoilDepthModerate || d == SoilDepthDeep
}

// Known reports whether d is one of the named drainage classes.
func (d Drainage) Known() bool {
	return d == DrainagePoor || d == DrainageModerate || d == DrainageGood
}

// UnmarshalText lets SoilDepth be decoded leniently from JSON and YAML.
func (d *SoilDepth) UnmarshalText(b []byte) error {
	*d = ParseSoilDepth(string(b))
	return nil
}

// UnmarshalText lets Drainage be decoded leniently from JSON and YAML.
func (d *Drainage) UnmarshalText(b []byte) error {
	*d = ParseDrainage(string(b))
	return nil
}

// UnmarshalText normalizes land use labels on decode.
func (l *LandUse) UnmarshalText(b []byte) error {
	lu, _ := ParseLandUse(string(b))
	*l = lu
	return nil
}
