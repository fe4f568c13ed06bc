// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package expressions

import "bytes"

var (
	openDelim  = []byte("[[")
	sepDelim   = []byte("::")
	closeDelim = []byte("]]")
)

// marker is one syntactic [[phrase::meaning]] match. start and end are byte
// offsets into the scanned buffer; end is exclusive.
type marker struct {
	start, end int
	phrase     string
	meaning    string
}

// nextMarker returns the leftmost marker in buf that starts at or after from.
//
// Inside a marker neither field may contain '[' or ']'. The first "::" after
// the opening brackets separates the fields and the first "]]" closes the
// marker, so a candidate fails as soon as it meets any other bracket. Fields
// may be empty here; Validate rejects them later.
//
// A match found in a prefix of some text is also the match at that position
// in the full text: every byte that decides it lies before its end. Stream
// relies on this.
func nextMarker(buf []byte, from int) (marker, bool) {
	for from < len(buf) {
		i := bytes.Index(buf[from:], openDelim)
		if i < 0 {
			return marker{}, false
		}
		start := from + i
		inner := start + len(openDelim)

		k := bytes.IndexAny(buf[inner:], "[]")
		if k < 0 {
			// No bracket left, so neither a close nor a later open exists.
			return marker{}, false
		}
		k += inner

		if bytes.HasPrefix(buf[k:], closeDelim) {
			if sep := bytes.Index(buf[inner:k], sepDelim); sep >= 0 {
				return marker{
					start:   start,
					end:     k + len(closeDelim),
					phrase:  string(buf[inner : inner+sep]),
					meaning: string(buf[inner+sep+len(sepDelim) : k]),
				}, true
			}
		}

		from = start + 1
	}
	return marker{}, false
}

// scanMarkers returns every non-overlapping marker in buf, left to right.
// Scanning resumes right after each match, so adjacent markers both match.
func scanMarkers(buf []byte) []marker {
	var markers []marker
	for pos := 0; ; {
		m, ok := nextMarker(buf, pos)
		if !ok {
			return markers
		}
		markers = append(markers, m)
		pos = m.end
	}
}

// deadPrefix returns how many leading bytes of buf can never belong to a
// marker, assuming buf holds no complete marker. Any start before the last
// '[' would need that bracket inside its fields, so only the last "[[" (or
// a trailing lone '[' that may become one) is kept.
func deadPrefix(buf []byte) int {
	j := bytes.LastIndexByte(buf, '[')
	if j < 0 {
		return len(buf)
	}
	if j > 0 && buf[j-1] == '[' {
		return j - 1
	}
	return j
}
