// Package pathseq implements the slash-delimited sequence encoding used by
// the path index. A sequence lists internal node ids from the root-most
// ancestor to the terminal node, encoded as "/3/7/12/" so that containment,
// prefix, and adjacency checks compile to plain substring predicates both in
// Go and in SQL.
package pathseq

import (
	"fmt"
	"strconv"
	"strings"
)

// Seq is one root-to-node path, root first, terminal last.
type Seq []int64

// Marker returns the delimited form of a single id, "/7/". Every encoded
// sequence contains the marker of each member exactly once, so substring
// matching on markers never produces false positives across id boundaries.
func Marker(id int64) string {
	return "/" + strconv.FormatInt(id, 10) + "/"
}

// EdgeMarker returns the delimited form of parent immediately followed by
// child, "/3/7/". A path contains this substring iff it records the edge.
func EdgeMarker(parent, child int64) string {
	return Marker(parent) + strconv.FormatInt(child, 10) + "/"
}

// Encode renders the sequence as "/a/b/c/". An empty sequence encodes to "/".
func (s Seq) Encode() string {
	var b strings.Builder
	b.WriteByte('/')
	for _, id := range s {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte('/')
	}
	return b.String()
}

// Decode parses a non-empty encoded sequence. It rejects malformed input:
// missing delimiters, empty segments, non-numeric ids.
func Decode(raw string) (Seq, error) {
	if len(raw) < 2 || raw[0] != '/' || raw[len(raw)-1] != '/' {
		return nil, fmt.Errorf("malformed path sequence %q", raw)
	}
	parts := strings.Split(raw[1:len(raw)-1], "/")
	seq := make(Seq, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed path sequence %q: %w", raw, err)
		}
		seq = append(seq, id)
	}
	return seq, nil
}

// Root returns the first element. Panics on empty sequences; stored rows are
// never empty.
func (s Seq) Root() int64 {
	return s[0]
}

// Terminal returns the last element.
func (s Seq) Terminal() int64 {
	return s[len(s)-1]
}

// IndexOf returns the position of id in the sequence, or -1. A node appears
// at most once on any acyclic path.
func (s Seq) IndexOf(id int64) int {
	for i, v := range s {
		if v == id {
			return i
		}
	}
	return -1
}

// Contains reports whether id appears anywhere in the sequence.
func (s Seq) Contains(id int64) bool {
	return s.IndexOf(id) >= 0
}

// SuffixFrom returns the sub-sequence starting at id, inclusive, or nil if
// id is absent. The result aliases the receiver.
func (s Seq) SuffixFrom(id int64) Seq {
	i := s.IndexOf(id)
	if i < 0 {
		return nil
	}
	return s[i:]
}

// Concat returns a new sequence holding s followed by tail.
func (s Seq) Concat(tail Seq) Seq {
	out := make(Seq, 0, len(s)+len(tail))
	out = append(out, s...)
	out = append(out, tail...)
	return out
}

// HasPrefix reports whether s begins with the full contents of prefix.
func (s Seq) HasPrefix(prefix Seq) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i, v := range prefix {
		if s[i] != v {
			return false
		}
	}
	return true
}

// Equal reports element-wise equality.
func (s Seq) Equal(other Seq) bool {
	if len(s) != len(other) {
		return false
	}
	for i, v := range s {
		if other[i] != v {
			return false
		}
	}
	return true
}
