package connection

// Mode is the closed set of connection modes negotiated at handshake and
// immutable for the connection's lifetime (spec §3).
type Mode string

const (
	ModeCommand           Mode = "Command"
	ModeIntercept          Mode = "Intercept"
	ModeSubscribe          Mode = "Subscribe"
	ModePluginService       Mode = "PluginService"
	ModePluginHttpEndpoint Mode = "PluginHttpEndpoint"
)

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeCommand, ModeIntercept, ModeSubscribe, ModePluginService, ModePluginHttpEndpoint:
		return true
	default:
		return false
	}
}
