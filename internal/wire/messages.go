package wire

import "github.com/segmentio/encoding/json"

// ProtocolVersion is the server's current wire protocol version (spec §4.2).
const ProtocolVersion = 1

// ServerHello is the unsolicited first frame written by the server on accept.
type ServerHello struct {
	Version uint32 `json:"version"`
}

// SubscribeOptions configures a Subscribe-mode connection (spec §4.5).
type SubscribeOptions struct {
	Mode   string   `json:"mode"` // "Full" | "Patch"
	Filter []string `json:"filter,omitempty"`
}

// InterceptOptions configures an Intercept-mode connection's filter
// (spec §4.4).
type InterceptOptions struct {
	Stage        string   `json:"stage,omitempty"` // "PreCode" | "PostCode" | "ExecutedCode"
	Channels     []string `json:"channels,omitempty"`
	CodeTypes    []string `json:"codeTypes,omitempty"`
	MCodeNumbers []int    `json:"mcodeNumbers,omitempty"`
}

// ClientHello is the first frame the client writes, declaring the mode it
// wants and the permissions it is requesting.
type ClientHello struct {
	Mode              string            `json:"mode"`
	Version           uint32            `json:"version"`
	Plugin            string            `json:"plugin,omitempty"`
	Permissions       []string          `json:"permissions,omitempty"`
	SubscribeOptions  *SubscribeOptions  `json:"subscribe-options,omitempty"`
	InterceptOptions  *InterceptOptions  `json:"intercept-options,omitempty"`
}

// InitResponse is the server's reply to a client-hello.
type InitResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	SessionID    uint32 `json:"sessionId,omitempty"`
	SocketPath   string `json:"socketPath,omitempty"`
}

// CommandEnvelope is the generic shape of every Command-mode request: a
// discriminator naming the concrete kind, and the kind's own fields
// captured as raw JSON for the dispatcher to decode against the registered
// kind's Go type. Decoding into a fixed struct first and a raw payload
// second is how Go expresses a tagged union without reflection-heavy
// polymorphism (the teacher's single-struct Request does the same thing
// for its much smaller command set).
type CommandEnvelope struct {
	Command string          `json:"command"`
	Raw     json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the whole object as Raw in addition to decoding
// the discriminator, so a second Unmarshal into the kind-specific type can
// reuse the same bytes.
func (e *CommandEnvelope) UnmarshalJSON(data []byte) error {
	var disc struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return err
	}
	e.Command = disc.Command
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Response is the tagged union of the three wire response shapes (spec §3):
// success-void, success-with-value, and error. Result is left as `any` so
// any command's result type marshals through unchanged (e.g. GetObjectModel
// puts a model.Snapshot here).
type Response struct {
	Success      bool   `json:"success"`
	Result       any    `json:"result,omitempty"`
	ErrorType    string `json:"errorType,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// OK builds a success response, void if result is nil.
func OK(result any) Response {
	return Response{Success: true, Result: result}
}

// Err builds an error response.
func Err(errType, message string) Response {
	return Response{Success: false, ErrorType: errType, ErrorMessage: message}
}
