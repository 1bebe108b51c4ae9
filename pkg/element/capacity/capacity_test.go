package capacity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/artstore/artstore/pkg/registry"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tib := int64(1) << 40

	tests := []struct {
		name  string
		mode  registry.Mode
		total int64
		used  int64
		want  registry.CapacityStatus
	}{
		{"rw empty", registry.ModeRW, tib, 0, registry.CapacityOK},
		{"rw at eighty percent", registry.ModeRW, tib, tib * 80 / 100, registry.CapacityOK},
		{"rw at eighty-seven percent", registry.ModeRW, tib, tib * 87 / 100, registry.CapacityWarning},
		{"rw at ninety-five percent of 1TB", registry.ModeRW, tib, tib * 95 / 100, registry.CapacityCritical},
		{"rw at ninety-nine percent", registry.ModeRW, tib, tib * 99 / 100, registry.CapacityFull},
		{"edit at ninety-one percent", registry.ModeEdit, tib, tib * 91 / 100, registry.CapacityWarning},
		{"edit at ninety-six percent", registry.ModeEdit, tib, tib * 96 / 100, registry.CapacityCritical},
		{"small disk empty is already below warning floor", registry.ModeRW, 100 * gib, 0, registry.CapacityWarning},
		{"small disk near the absolute minimum", registry.ModeRW, 100 * gib, 85 * gib, registry.CapacityFull},
		{"ro never full", registry.ModeRO, tib, tib, registry.CapacityOK},
		{"ar never full", registry.ModeAR, tib, tib, registry.CapacityOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Evaluate(tt.mode, tt.total, tt.used))
		})
	}
}

func TestFullFloor(t *testing.T) {
	t.Parallel()

	tib := int64(1) << 40

	// For a 1 TiB RW element the percentage floor (2% ~ 20.5 GiB) beats
	// the 20 GiB minimum.
	assert.Equal(t, int64(float64(tib)*0.02), FullFloor(registry.ModeRW, tib))

	// On a small disk the absolute minimum dominates.
	assert.Equal(t, 20*gib, FullFloor(registry.ModeRW, 100*gib))

	// Read-only modes have no floor.
	assert.Zero(t, FullFloor(registry.ModeRO, tib))
	assert.Zero(t, FullFloor(registry.ModeAR, tib))
}
