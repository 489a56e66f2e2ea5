// Package intercept implements the code-interception broker described in
// spec §4.4: Intercept-mode connections register a filter and are offered
// matching codes in registration order before the code reaches its normal
// execution path, one connection at a time, each getting the full
// Offered/AwaitingVerdict/Resolving cycle before the next candidate (if any)
// is tried.
package intercept

import (
	"context"
	"sync"

	"github.com/duet3d/dcsd/internal/dcserr"
	"github.com/duet3d/dcsd/internal/modelsource"
	"github.com/duet3d/dcsd/internal/wire"
)

// State is the per-interceptor state machine named in spec §4.4.
type State int

const (
	StateIdle State = iota
	StateOffered
	StateAwaitingVerdict
	StateResolving
)

// Filter is one Intercept connection's subscription criteria, built from
// its handshake intercept-options. A zero-value field means "any".
type Filter struct {
	Stage        wire.Stage
	Channels     map[string]struct{}
	CodeTypes    map[string]struct{}
	MCodeNumbers map[int]struct{}
}

// FilterFromOptions builds a Filter from the wire options; a nil opts
// matches every code.
func FilterFromOptions(opts *wire.InterceptOptions) Filter {
	f := Filter{}
	if opts == nil {
		return f
	}
	f.Stage = wire.Stage(opts.Stage)
	if len(opts.Channels) > 0 {
		f.Channels = toSet(opts.Channels)
	}
	if len(opts.CodeTypes) > 0 {
		f.CodeTypes = toSet(opts.CodeTypes)
	}
	if len(opts.MCodeNumbers) > 0 {
		f.MCodeNumbers = make(map[int]struct{}, len(opts.MCodeNumbers))
		for _, n := range opts.MCodeNumbers {
			f.MCodeNumbers[n] = struct{}{}
		}
	}
	return f
}

func toSet(ss []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		set[s] = struct{}{}
	}
	return set
}

// Matches reports whether code qualifies under f.
func (f Filter) Matches(code wire.Code) bool {
	if f.Stage != "" && f.Stage != code.Stage {
		return false
	}
	if f.Channels != nil {
		if _, ok := f.Channels[code.Channel]; !ok {
			return false
		}
	}
	if f.CodeTypes != nil {
		if _, ok := f.CodeTypes[code.Type]; !ok {
			return false
		}
	}
	if f.MCodeNumbers != nil {
		if _, ok := f.MCodeNumbers[code.MajorNumber]; !ok {
			return false
		}
	}
	return true
}

type offer struct {
	code wire.Code
}

// Interceptor is one Intercept-mode connection's registration with the
// broker. The intercept processor owns the receiving half (NextOffer,
// SubmitVerdict); the broker owns the offering half (Offer).
type Interceptor struct {
	ConnID uint32
	filter Filter

	offerCh   chan offer
	verdictCh chan wire.Verdict

	mu    sync.Mutex
	state State
}

// NewInterceptor builds a registration for connID with opts as its filter.
func NewInterceptor(connID uint32, opts *wire.InterceptOptions) *Interceptor {
	return &Interceptor{
		ConnID:    connID,
		filter:    FilterFromOptions(opts),
		offerCh:   make(chan offer),
		verdictCh: make(chan wire.Verdict),
	}
}

func (i *Interceptor) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}

// State returns the interceptor's current state, for diagnostics.
func (i *Interceptor) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// NextOffer blocks until the broker offers this interceptor a code, or ctx
// is cancelled (connection closing — spec §4.4's "Ignore on disconnect").
func (i *Interceptor) NextOffer(ctx context.Context) (wire.Code, bool) {
	select {
	case o := <-i.offerCh:
		i.setState(StateOffered)
		return o.code, true
	case <-ctx.Done():
		return wire.Code{}, false
	}
}

// AwaitingVerdict transitions the interceptor into the state that permits
// auxiliary commands on the same connection (spec §4.4).
func (i *Interceptor) AwaitingVerdict() {
	i.setState(StateAwaitingVerdict)
}

// SubmitVerdict hands the client's verdict back to the broker's pending
// Offer call and returns the interceptor to Idle.
func (i *Interceptor) SubmitVerdict(v wire.Verdict) {
	i.setState(StateResolving)
	i.verdictCh <- v
	i.setState(StateIdle)
}

// Broker fans a submitted code out to registered interceptors in
// registration order until one resolves or cancels it, or all ignore it.
type Broker struct {
	mu           sync.Mutex
	interceptors []*Interceptor
}

// NewBroker builds an empty broker.
func NewBroker() *Broker {
	return &Broker{}
}

// Register adds i to the candidate list.
func (b *Broker) Register(i *Interceptor) {
	b.mu.Lock()
	b.interceptors = append(b.interceptors, i)
	b.mu.Unlock()
}

// Unregister removes i, called on the owning connection's close.
func (b *Broker) Unregister(i *Interceptor) {
	b.mu.Lock()
	for idx, other := range b.interceptors {
		if other == i {
			b.interceptors = append(b.interceptors[:idx], b.interceptors[idx+1:]...)
			break
		}
	}
	b.mu.Unlock()
}

// Offer builds a Code frame and walks registered interceptors matching it
// in registration order. It returns (result, true, nil) if an interceptor
// resolved the code, (nil, true, err) if one cancelled it, or (nil, false,
// nil) if no interceptor claimed it — the caller should execute the code
// normally. ctx cancellation (e.g. the submitting connection closing)
// aborts the walk early.
func (b *Broker) Offer(ctx context.Context, stage wire.Stage, channel modelsource.CodeChannel, codeType string, majorNumber, minorNumber int, content string, seq uint64) (*wire.CodeResult, bool, error) {
	b.mu.Lock()
	candidates := make([]*Interceptor, 0, len(b.interceptors))
	code := wire.Code{
		Type: codeType, MajorNumber: majorNumber, MinorNumber: minorNumber,
		Channel: string(channel), Stage: stage, Content: content, SequenceNumber: seq,
	}
	for _, i := range b.interceptors {
		if i.filter.Matches(code) {
			candidates = append(candidates, i)
		}
	}
	b.mu.Unlock()

	for _, i := range candidates {
		select {
		case i.offerCh <- offer{code: code}:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}

		select {
		case v := <-i.verdictCh:
			switch v.Command {
			case wire.VerdictResolve:
				return v.Result, true, nil
			case wire.VerdictCancel:
				return nil, true, dcserr.New(dcserr.Cancelled, "code cancelled by intercept connection %d", i.ConnID)
			default: // Ignore
				continue
			}
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	return nil, false, nil
}
