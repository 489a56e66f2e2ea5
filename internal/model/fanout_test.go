package model

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestFanoutPatchBackpressureCollapsesUpdates(t *testing.T) {
	f := NewFanout()
	initial := Snapshot{"state": map[string]any{"status": "idle"}, "heat": map[string]any{"current": 20.0}}
	sub := f.Subscribe(1, PushPatch, nil, initial, rate.Inf, 1)

	// Three updates happen before the subscriber ever calls Next — the
	// backpressure-collapse rule (spec §4.5/§8 invariant 8): the eventual
	// push must reflect all three.
	f.Publish(Snapshot{"state": map[string]any{"status": "printing"}, "heat": map[string]any{"current": 20.0}})
	f.Publish(Snapshot{"state": map[string]any{"status": "printing"}, "heat": map[string]any{"current": 35.0}})
	f.Publish(Snapshot{"state": map[string]any{"status": "paused"}, "heat": map[string]any{"current": 40.0}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Frame 0 is always the subscribe-time baseline, delivered ahead of
	// anything published afterward.
	first, ok := sub.Next(ctx)
	require.True(t, ok)
	require.Equal(t, initial, first.Value)

	fr, ok := sub.Next(ctx)
	require.True(t, ok)

	patch, ok := fr.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"status": "paused"}, patch["state"])
	assert.Equal(t, map[string]any{"current": 40.0}, patch["heat"])
}

func TestFanoutPatchFilterRestrictsKeys(t *testing.T) {
	f := NewFanout()
	initial := Snapshot{"state": map[string]any{"status": "idle"}, "heat": map[string]any{"current": 20.0}}
	sub := f.Subscribe(1, PushPatch, []string{"state"}, initial, rate.Inf, 1)

	f.Publish(Snapshot{"state": map[string]any{"status": "idle"}, "heat": map[string]any{"current": 99.0}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	first, ok := sub.Next(ctx)
	require.True(t, ok, "frame 0 must still be delivered")
	require.Equal(t, initial, first.Value)

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	_, ok = sub.Next(shortCtx)
	assert.False(t, ok, "heat-only change must not produce a frame under a state-only filter")
}

func TestFanoutFullModeAlwaysLatest(t *testing.T) {
	f := NewFanout()
	initial := Snapshot{"state": map[string]any{"status": "idle"}}
	sub := f.Subscribe(1, PushFull, nil, initial, rate.Inf, 1)

	f.Publish(Snapshot{"state": map[string]any{"status": "printing"}})
	f.Publish(Snapshot{"state": map[string]any{"status": "paused"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, ok := sub.Next(ctx)
	require.True(t, ok)
	require.Equal(t, initial, first.Value)

	fr, ok := sub.Next(ctx)
	require.True(t, ok)
	snap, ok := fr.Value.(Snapshot)
	require.True(t, ok)
	assert.Equal(t, "paused", snap["state"].(map[string]any)["status"])
}

func TestFanoutUnsubscribeStopsDelivery(t *testing.T) {
	f := NewFanout()
	sub := f.Subscribe(1, PushFull, nil, Snapshot{}, rate.Inf, 1)
	f.Unsubscribe(1)
	f.Publish(Snapshot{"state": map[string]any{"status": "printing"}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := sub.Next(ctx)
	assert.False(t, ok)
}
