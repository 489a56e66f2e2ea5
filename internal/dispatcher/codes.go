package dispatcher

import (
	"context"

	"github.com/segmentio/encoding/json"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/dcserr"
	"github.com/duet3d/dcsd/internal/modelsource"
	"github.com/duet3d/dcsd/internal/wire"
)

// submitWithIntercept offers code to any registered Intercept connection at
// PreCode before forwarding it to source, at PostCode once source has
// produced a result, and at ExecutedCode once that result is final —
// matching spec §4.4's three gated stages. A Resolve verdict at PreCode or
// PostCode replaces the result source would have produced (PreCode: source
// is never called at all); a Cancel verdict surfaces as a Cancelled error.
// ExecutedCode is offered for visibility only, after the result is already
// decided, so its verdict (if any) is ignored. No registered interceptor
// (or every one Ignoring) falls through to source's normal result.
func (d *Dispatcher) submitWithIntercept(ctx context.Context, channel modelsource.CodeChannel, raw string) (string, error) {
	codeType, major, minor := parseCodeLine(raw)

	if d.Intercept != nil {
		if result, handled, err := d.Intercept.Offer(ctx, wire.StagePreCode, channel, codeType, major, minor, raw, 0); handled {
			if err != nil {
				return "", err
			}
			return result.Content, nil
		}
	}

	result, err := d.Source.SubmitCode(ctx, channel, raw)
	if err != nil {
		return "", err
	}

	if d.Intercept != nil {
		if post, handled, err := d.Intercept.Offer(ctx, wire.StagePostCode, channel, codeType, major, minor, result, 0); handled {
			if err != nil {
				return "", err
			}
			result = post.Content
		}
		d.Intercept.Offer(ctx, wire.StageExecutedCode, channel, codeType, major, minor, result, 0)
	}
	return result, nil
}

type codeRequest struct {
	Channel string `json:"channel"`
	Code    string `json:"code"`
}

type flushRequest struct {
	Channel string `json:"channel"`
}

type evaluateRequest struct {
	Channel    string `json:"channel"`
	Expression string `json:"expression"`
}

func (d *Dispatcher) registerCodeKinds() {
	codeModes := modes(connection.ModeCommand, connection.ModeIntercept)

	d.register(&Kind{
		Name: "Code", AllowedModes: codeModes,
		Permissions: []connection.Permission{connection.CommandExecution},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req codeRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad Code request: %v", err)
			}
			if req.Code == "" {
				return nil, dcserr.New(dcserr.InvalidArgument, "code is required")
			}
			return d.submitWithIntercept(ctx, modelsource.CodeChannel(channelOrDefault(req.Channel)), req.Code)
		},
	})

	d.register(&Kind{
		Name: "SimpleCode", AllowedModes: codeModes,
		Permissions: []connection.Permission{connection.CommandExecution},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req codeRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad SimpleCode request: %v", err)
			}
			return d.submitWithIntercept(ctx, modelsource.CodeChannel(channelOrDefault(req.Channel)), req.Code)
		},
	})

	d.register(&Kind{
		Name: "Flush", AllowedModes: codeModes, ResultVoid: true,
		Permissions: []connection.Permission{connection.CommandExecution},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req flushRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad Flush request: %v", err)
			}
			return nil, d.Source.Flush(ctx, modelsource.CodeChannel(channelOrDefault(req.Channel)))
		},
	})

	d.register(&Kind{
		Name: "EvaluateExpression", AllowedModes: codeModes,
		Permissions: []connection.Permission{connection.ObjectModelRead},
		Handler: func(ctx context.Context, d *Dispatcher, conn *connection.Connection, raw json.RawMessage) (any, error) {
			var req evaluateRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, dcserr.New(dcserr.DeserializationError, "bad EvaluateExpression request: %v", err)
			}
			if req.Expression == "" {
				return nil, dcserr.New(dcserr.InvalidArgument, "expression is required")
			}
			return d.Source.EvaluateExpression(ctx, modelsource.CodeChannel(channelOrDefault(req.Channel)), req.Expression)
		},
	})
}

func channelOrDefault(ch string) string {
	if ch == "" {
		return string(modelsource.ChannelSBC)
	}
	return ch
}
