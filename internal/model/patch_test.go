package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffMergePatchScalarChange(t *testing.T) {
	old := Snapshot{"state": map[string]any{"status": "idle"}}
	next := Snapshot{"state": map[string]any{"status": "printing"}}

	patch := DiffMergePatch(old, next, nil)
	require.NotNil(t, patch)
	assert.Equal(t, map[string]any{"status": "printing"}, patch["state"])
	assert.NotContains(t, patch, "heat")
}

func TestDiffMergePatchFilteredKeyIgnored(t *testing.T) {
	old := Snapshot{
		"state": map[string]any{"status": "idle"},
		"heat":  map[string]any{"current": 20.0},
	}
	next := Snapshot{
		"state": map[string]any{"status": "idle"},
		"heat":  map[string]any{"current": 45.0},
	}

	patch := DiffMergePatch(old, next, []string{"state"})
	assert.Nil(t, patch, "heat change must be filtered out")
}

func TestDiffMergePatchDeletedKeyIsNull(t *testing.T) {
	old := Snapshot{"job": map[string]any{"file": "x.gcode"}}
	next := Snapshot{}

	patch := DiffMergePatch(old, next, nil)
	require.NotNil(t, patch)
	assert.Nil(t, patch["job"])
}

func TestDiffMergePatchNoChangeIsNil(t *testing.T) {
	old := Snapshot{"state": map[string]any{"status": "idle"}}
	next := Snapshot{"state": map[string]any{"status": "idle"}}

	assert.Nil(t, DiffMergePatch(old, next, nil))
}

func TestApplyMergePatchRoundTrip(t *testing.T) {
	old := Snapshot{
		"state": map[string]any{"status": "idle"},
		"heat":  map[string]any{"current": 20.0},
	}
	next := Snapshot{
		"state": map[string]any{"status": "printing"},
		"heat":  map[string]any{"current": 20.0},
	}

	patch := DiffMergePatch(old, next, nil)
	applied := applyTopLevel(old, patch)
	assert.Equal(t, next, applied)
}
