// Package modelsource is the core's abstract collaborator standing in for
// the RRF SPI transport (spec §1: "the on-wire protocol between the daemon
// and the motion controller" is out of scope, but the core's contract to
// that transport is in scope as an interface). Everything downstream of
// Source — the dispatcher's SyncObjectModel handler and the
// Code/SimpleCode/Flush code-submission handlers — only ever sees this
// interface. GetObjectModel reads the core's own store, not Source.
package modelsource

import (
	"context"

	"github.com/duet3d/dcsd/internal/model"
)

// CodeChannel names a queue through which codes flow (spec GLOSSARY).
type CodeChannel string

const (
	ChannelHTTP    CodeChannel = "HTTP"
	ChannelTelnet  CodeChannel = "Telnet"
	ChannelFile    CodeChannel = "File"
	ChannelTrigger CodeChannel = "Trigger"
	ChannelSBC     CodeChannel = "SBC"
)

// Source is the abstract motion-controller collaborator.
type Source interface {
	// Snapshot returns a consistent full object-model read.
	Snapshot(ctx context.Context) (model.Snapshot, error)

	// SubmitCode forwards a parsed code on channel and returns its result
	// once the pipeline completes (spec §4.7 "Codes").
	SubmitCode(ctx context.Context, channel CodeChannel, raw string) (string, error)

	// Flush blocks until channel's pipeline has drained.
	Flush(ctx context.Context, channel CodeChannel) error

	// EvaluateExpression evaluates an object-model expression and returns
	// its JSON-encodable result.
	EvaluateExpression(ctx context.Context, channel CodeChannel, expr string) (any, error)
}
