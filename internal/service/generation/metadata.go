package generation

import (
	"encoding/json"
	"strings"
)

// deltaGate sits between the raw text stream and the caller's DeltaFunc.
// It withholds just enough of the tail that the metadata trailer is never
// emitted as code, and withholds the head until the out-of-domain marker
// can be ruled out.
type deltaGate struct {
	onDelta DeltaFunc

	all     strings.Builder // everything received
	pending string          // received but not yet emitted

	headChecked bool // invalid marker ruled out
	invalid     bool // stream is the invalid marker
	done        bool // metadata marker seen, emission stopped
}

func newDeltaGate(onDelta DeltaFunc) *deltaGate {
	return &deltaGate{onDelta: onDelta}
}

// write feeds one raw delta through the gate.
func (g *deltaGate) write(delta string) error {
	g.all.WriteString(delta)
	if g.done || g.invalid {
		return nil
	}

	g.pending += delta

	if !g.headChecked {
		head := strings.TrimLeft(g.pending, " \t\r\n")
		if strings.HasPrefix(head, invalidMarker) {
			g.invalid = true
			g.pending = ""
			return nil
		}
		if len(head) < len(invalidMarker) && strings.HasPrefix(invalidMarker, head) {
			// Could still become the invalid marker; hold everything.
			return nil
		}
		g.headChecked = true
	}

	if idx := strings.Index(g.pending, metadataMarker); idx >= 0 {
		g.done = true
		out := g.pending[:idx]
		g.pending = ""
		if out != "" && g.onDelta != nil {
			return g.onDelta(out)
		}
		return nil
	}

	// Keep len(marker)-1 bytes back in case the marker arrives split
	// across deltas.
	emittable := len(g.pending) - (len(metadataMarker) - 1)
	if emittable <= 0 {
		return nil
	}

	out := g.pending[:emittable]
	g.pending = g.pending[emittable:]
	if g.onDelta != nil {
		return g.onDelta(out)
	}
	return nil
}

// flush emits any withheld tail once the stream has ended.
func (g *deltaGate) flush() error {
	if g.done || g.invalid || g.pending == "" {
		return nil
	}

	out := g.pending
	g.pending = ""
	if g.onDelta != nil {
		return g.onDelta(out)
	}
	return nil
}

// text returns the full accumulated stream.
func (g *deltaGate) text() string {
	return g.all.String()
}

// fullMetadata is the JSON trailer after the metadata marker.
type fullMetadata struct {
	Skills  []string `json:"skills"`
	Summary string   `json:"summary"`
}

// splitFullOutput separates the code body from the metadata trailer. A
// missing or malformed trailer yields empty metadata, not an error: the
// code is still usable.
func splitFullOutput(text string) (code string, meta fullMetadata) {
	body := text
	if idx := strings.Index(text, metadataMarker); idx >= 0 {
		body = text[:idx]
		trailer := text[idx+len(metadataMarker):]
		if payload, err := extractJSONObject(trailer); err == nil {
			_ = json.Unmarshal([]byte(payload), &meta)
		}
	}

	return stripCodeFences(strings.TrimSpace(body)), meta
}

// isInvalidRequest reports whether the stream declared the request out of
// domain.
func isInvalidRequest(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), invalidMarker)
}
