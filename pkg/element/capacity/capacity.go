// Package capacity classifies a storage element's free space against
// mode-dependent thresholds. Each level has a percentage floor and an
// absolute minimum; whichever is larger wins, so big volumes are guarded
// proportionally and small volumes never run down to zero.
package capacity

import (
	"github.com/artstore/artstore/pkg/registry"
)

const gib = int64(1) << 30

// level is one free-space floor: the element crosses into the level when
// free space drops below max(total × pct, minFree).
type level struct {
	pct     float64
	minFree int64
}

func (l level) floor(totalBytes int64) int64 {
	byPct := int64(float64(totalBytes) * l.pct)
	if l.minFree > byPct {
		return l.minFree
	}
	return byPct
}

// thresholds holds the three floors for a writable mode.
type thresholds struct {
	warning  level
	critical level
	full     level
}

// Write-mode thresholds. RW elements keep a larger reserve than EDIT
// elements; read-only modes have no floors at all.
var modeThresholds = map[registry.Mode]thresholds{
	registry.ModeRW: {
		warning:  level{pct: 0.15, minFree: 150 * gib},
		critical: level{pct: 0.08, minFree: 80 * gib},
		full:     level{pct: 0.02, minFree: 20 * gib},
	},
	registry.ModeEdit: {
		warning:  level{pct: 0.10, minFree: 100 * gib},
		critical: level{pct: 0.05, minFree: 50 * gib},
		full:     level{pct: 0.02, minFree: 20 * gib},
	},
}

// Evaluate maps an element's usage to its capacity status. RO and AR
// elements accept no writes, so they are never WARNING or FULL.
func Evaluate(mode registry.Mode, totalBytes, usedBytes int64) registry.CapacityStatus {
	t, ok := modeThresholds[mode]
	if !ok {
		return registry.CapacityOK
	}
	free := totalBytes - usedBytes
	switch {
	case free < t.full.floor(totalBytes):
		return registry.CapacityFull
	case free < t.critical.floor(totalBytes):
		return registry.CapacityCritical
	case free < t.warning.floor(totalBytes):
		return registry.CapacityWarning
	default:
		return registry.CapacityOK
	}
}

// FullFloor returns the free-space floor below which the mode is FULL, used
// by admission pre-flight checks. Zero for modes with no thresholds.
func FullFloor(mode registry.Mode, totalBytes int64) int64 {
	t, ok := modeThresholds[mode]
	if !ok {
		return 0
	}
	return t.full.floor(totalBytes)
}
