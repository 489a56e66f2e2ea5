package modelsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duet3d/dcsd/internal/dcserr"
	"github.com/duet3d/dcsd/internal/model"
)

func TestBreakerPassesThroughOnSuccess(t *testing.T) {
	fake := NewFake(model.Snapshot{"state": map[string]any{"status": "idle"}})
	src := NewBreakerSource(fake)

	snap, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "idle", snap["state"].(map[string]any)["status"])
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	fake := NewFake(model.Snapshot{})
	fake.SetFailing(true)
	src := NewBreakerSource(fake)

	for i := 0; i < 5; i++ {
		_, err := src.Snapshot(context.Background())
		assert.Error(t, err)
	}

	_, err := src.Snapshot(context.Background())
	require.Error(t, err)
	var de *dcserr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dcserr.IoError, de.Kind)
}
