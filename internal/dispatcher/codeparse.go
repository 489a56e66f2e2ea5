package dispatcher

import "strconv"

// parseCodeLine extracts the leading letter/number pair from a single
// G-code line — "G28" -> ("G", 28, 0), "M106.1" -> ("M", 106, 1), "T0" ->
// ("T", 0, 0) — so the intercept broker's CodeTypes/MCodeNumbers filter
// dimensions have something real to match against (spec §4.4). This is
// lexical structure only, not G-code semantics (out of scope per §1):
// anything after the number, and lines that don't start with a letter, are
// left for the code's normal execution path to interpret or reject.
func parseCodeLine(raw string) (codeType string, major, minor int) {
	i := 0
	for i < len(raw) && raw[i] == ' ' {
		i++
	}
	if i >= len(raw) {
		return "", 0, 0
	}
	c := raw[i]
	switch {
	case c >= 'A' && c <= 'Z':
		codeType = string(c)
	case c >= 'a' && c <= 'z':
		codeType = string(c - 32) // normalize to uppercase
	default:
		return "", 0, 0
	}
	i++

	start := i
	for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
		i++
	}
	if i > start {
		major, _ = strconv.Atoi(raw[start:i])
	}

	if i < len(raw) && raw[i] == '.' {
		i++
		start = i
		for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
			i++
		}
		if i > start {
			minor, _ = strconv.Atoi(raw[start:i])
		}
	}
	return codeType, major, minor
}
