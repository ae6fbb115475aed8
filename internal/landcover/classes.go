// Package landcover samples ESRI Global Land Cover rasters to decide the
// dominant class around a point.
package landcover

import (
	"strconv"
	"strings"
)

// ESRI Global Land Cover (Impact Observatory) class codes.
const (
	ClassWater             = 1
	ClassTrees             = 2
	ClassGrass             = 3
	ClassFloodedVegetation = 4
	ClassCropland          = 5
	ClassShrubScrub        = 6
	ClassBuiltUp           = 7
	ClassBareGround        = 8
	ClassSnowIce           = 9
	ClassClouds            = 10
	ClassRangeland         = 11
)

// UnknownLabel names codes without an ESRI label.
const UnknownLabel = "UNKNOWN"

var classLabels = map[int]string{
	ClassWater:             "WATER",
	ClassTrees:             "TREES",
	ClassGrass:             "GRASS",
	ClassFloodedVegetation: "FLOODED_VEGETATION",
	ClassCropland:          "CROPLAND",
	ClassShrubScrub:        "SHRUB_SCRUB",
	ClassBuiltUp:           "BUILT_UP",
	ClassBareGround:        "BARE_GROUND",
	ClassSnowIce:           "SNOW_ICE",
	ClassClouds:            "CLOUDS",
	ClassRangeland:         "RANGELAND",
}

// Label returns the ESRI label of code, or UNKNOWN.
func Label(code int) string {
	if l, ok := classLabels[code]; ok {
		return l
	}
	return UnknownLabel
}

// IsArable reports whether code is the only arable class, CROPLAND.
func IsArable(code int) bool {
	return code == ClassCropland
}

// IsValid reports whether code is a data value. Zero and negative codes are
// nodata.
func IsValid(code int) bool {
	return code > 0
}

// ParseClass reads a class from a numeric code or an ESRI label.
func ParseClass(s string) (int, bool) {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return int(n), true
	}
	label := strings.ToUpper(strings.NewReplacer(" ", "_", "/", "_", "-", "_").Replace(s))
	for code, l := range classLabels {
		if l == label {
			return code, true
		}
	}
	return 0, false
}
