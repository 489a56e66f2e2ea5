package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duet3d/dcsd/internal/connection"
	"github.com/duet3d/dcsd/internal/endpoint"
	"github.com/duet3d/dcsd/internal/intercept"
	"github.com/duet3d/dcsd/internal/model"
	"github.com/duet3d/dcsd/internal/modelsource"
	"github.com/duet3d/dcsd/internal/session"
	"github.com/duet3d/dcsd/internal/wire"
)

func TestDispatchCodeResolvedByInterceptor(t *testing.T) {
	store := model.NewStore(model.Snapshot{}, model.NewFanout())
	lock := model.NewLockManager()
	source := modelsource.NewFake(model.Snapshot{})
	broker := intercept.NewBroker()
	d := New(store, lock, model.NewFanout(), source, session.NewManager(), nil, endpoint.NewRegistry(t.TempDir()), broker, nil)

	interceptor := intercept.NewInterceptor(99, &wire.InterceptOptions{Stage: "PreCode"})
	broker.Register(interceptor)
	go func() {
		code, ok := interceptor.NextOffer(context.Background())
		require.True(t, ok)
		interceptor.AwaitingVerdict()
		interceptor.SubmitVerdict(wire.Verdict{
			Command: wire.VerdictResolve,
			Result:  &wire.CodeResult{Content: "intercepted:" + code.Content},
		})
	}()

	conn := testConnection(t, connection.ModeCommand, connection.NewSet(connection.CommandExecution))
	resp := d.Dispatch(context.Background(), conn, envelope(t, "Code", map[string]any{"code": "G28"}))
	require.True(t, resp.Success)
	assert.Equal(t, "intercepted:G28", resp.Result)
}

func TestDispatchCodeFallsThroughWithNoInterceptor(t *testing.T) {
	d := testDispatcher(t)
	conn := testConnection(t, connection.ModeCommand, connection.NewSet(connection.CommandExecution))

	resp := d.Dispatch(context.Background(), conn, envelope(t, "Code", map[string]any{"code": "G28"}))
	require.True(t, resp.Success)
	assert.Equal(t, "ok\n", resp.Result)
}

func TestDispatchCodeOffersStructuredTypeAndNumber(t *testing.T) {
	store := model.NewStore(model.Snapshot{}, model.NewFanout())
	lock := model.NewLockManager()
	source := modelsource.NewFake(model.Snapshot{})
	broker := intercept.NewBroker()
	d := New(store, lock, model.NewFanout(), source, session.NewManager(), nil, endpoint.NewRegistry(t.TempDir()), broker, nil)

	interceptor := intercept.NewInterceptor(99, &wire.InterceptOptions{Stage: "PreCode", CodeTypes: []string{"M"}, MCodeNumbers: []int{106}})
	broker.Register(interceptor)
	go func() {
		code, ok := interceptor.NextOffer(context.Background())
		require.True(t, ok)
		assert.Equal(t, "M", code.Type)
		assert.Equal(t, 106, code.MajorNumber)
		assert.Equal(t, 0, code.MinorNumber)
		interceptor.AwaitingVerdict()
		interceptor.SubmitVerdict(wire.Verdict{Command: wire.VerdictResolve, Result: &wire.CodeResult{Content: "fan-on"}})
	}()

	conn := testConnection(t, connection.ModeCommand, connection.NewSet(connection.CommandExecution))
	resp := d.Dispatch(context.Background(), conn, envelope(t, "Code", map[string]any{"code": "M106 S255"}))
	require.True(t, resp.Success)
	assert.Equal(t, "fan-on", resp.Result)
}

func TestDispatchCodeOffersExecutedCodeStageAfterResult(t *testing.T) {
	store := model.NewStore(model.Snapshot{}, model.NewFanout())
	lock := model.NewLockManager()
	source := modelsource.NewFake(model.Snapshot{})
	broker := intercept.NewBroker()
	d := New(store, lock, model.NewFanout(), source, session.NewManager(), nil, endpoint.NewRegistry(t.TempDir()), broker, nil)

	executed := intercept.NewInterceptor(7, &wire.InterceptOptions{Stage: "ExecutedCode"})
	broker.Register(executed)

	offered := make(chan wire.Code, 1)
	go func() {
		code, ok := executed.NextOffer(context.Background())
		require.True(t, ok)
		offered <- code
		executed.SubmitVerdict(wire.Verdict{Command: wire.VerdictIgnore})
	}()

	conn := testConnection(t, connection.ModeCommand, connection.NewSet(connection.CommandExecution))
	resp := d.Dispatch(context.Background(), conn, envelope(t, "Code", map[string]any{"code": "G28"}))
	require.True(t, resp.Success)
	assert.Equal(t, "ok\n", resp.Result)

	code := <-offered
	assert.Equal(t, wire.StageExecutedCode, code.Stage)
	assert.Equal(t, "G", code.Type)
	assert.Equal(t, 28, code.MajorNumber)
	assert.Equal(t, "ok\n", code.Content)
}

func TestParseCodeLine(t *testing.T) {
	cases := []struct {
		raw          string
		codeType     string
		major, minor int
	}{
		{"G28", "G", 28, 0},
		{"M106 S255", "M", 106, 0},
		{"T0", "T", 0, 0},
		{"g10.1", "G", 10, 1},
		{"", "", 0, 0},
		{"  G1 X10", "G", 1, 0},
	}
	for _, c := range cases {
		gotType, gotMajor, gotMinor := parseCodeLine(c.raw)
		assert.Equal(t, c.codeType, gotType, c.raw)
		assert.Equal(t, c.major, gotMajor, c.raw)
		assert.Equal(t, c.minor, gotMinor, c.raw)
	}
}
