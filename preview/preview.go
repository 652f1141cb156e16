// Package preview renders delegate responses for observe/continue replies:
// deterministic truncation with a fixed marker.
package preview

// Marker is appended to truncated previews.
const Marker = "… [truncated]"

// DefaultMaxChars bounds response previews when no limit is configured.
const DefaultMaxChars = 1000

// Truncate returns s unchanged when it fits within maxChars, or its prefix
// plus Marker otherwise. The second return reports whether truncation
// happened. Limits are counted in runes and the output never exceeds the
// limit (for limits shorter than the marker the output degenerates to the
// marker alone), which makes Truncate idempotent: re-truncating a truncated
// string with the same limit returns it unchanged.
func Truncate(s string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	runes := []rune(s)
	if len(runes) <= maxChars {
		return s, false
	}

	marker := []rune(Marker)
	cut := maxChars - len(marker)
	if cut < 0 {
		cut = 0
	}
	return string(runes[:cut]) + Marker, true
}
