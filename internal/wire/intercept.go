package wire

// Stage is one of the three points in the code pipeline an Intercept
// connection can filter on (spec §4.4, GLOSSARY).
type Stage string

const (
	StagePreCode     Stage = "PreCode"
	StagePostCode    Stage = "PostCode"
	StageExecutedCode Stage = "ExecutedCode"
)

// Code is the offer frame the server writes when a code matches an
// Intercept connection's filter.
type Code struct {
	Type         string `json:"type"` // "G" | "M" | "T" | ...
	MajorNumber  int    `json:"majorNumber,omitempty"`
	MinorNumber  int    `json:"minorNumber,omitempty"`
	Channel      string `json:"channel"`
	Stage        Stage  `json:"stage"`
	Content      string `json:"content,omitempty"`
	SequenceNumber uint64 `json:"sequenceNumber"`
}

// CodeResult is the payload of a Resolve verdict: the result the server
// should hand back to the code's originator in lieu of executing it.
type CodeResult struct {
	Content string `json:"content"`
}

// VerdictKind is the closed set of verdicts an Intercept client may return
// for an offered code (spec §4.4).
type VerdictKind string

const (
	VerdictIgnore  VerdictKind = "Ignore"
	VerdictCancel  VerdictKind = "Cancel"
	VerdictResolve VerdictKind = "Resolve"
)

// Verdict is the frame an Intercept client writes in response to an offer.
type Verdict struct {
	Command VerdictKind `json:"command"`
	Result  *CodeResult `json:"result,omitempty"`
}
