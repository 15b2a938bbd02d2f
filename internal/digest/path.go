package digest

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrPathSyntax is returned by Extract when path does not start with the
// required leading "$" or contains an unclosed or non-integer bracket
// index.
var ErrPathSyntax = errors.New("digest: invalid path syntax")

// ErrMissing is returned by Extract when path addresses a key or index
// that does not exist in value.
var ErrMissing = errors.New("digest: path not found")

// Marshal renders value as canonical JSON bytes.
func Marshal(value any) ([]byte, error) {
	return json.Marshal(value)
}

// Unmarshal decodes data into a generic JSON value (map/slice/scalar
// tree) suitable for Extract.
func Unmarshal(data []byte) (any, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}

type pathSegment struct {
	key      string // set when this segment is a map key
	index    int    // set when this segment is an array index
	isIndex  bool
	wildcard bool
}

// Extract walks value along path, using "$.a.b[i]" syntax: a leading "$"
// (required), dotted literal keys, and bracketed integer indices. A "*"
// index yields every element of the array addressed up to that point, as
// a []any. Extract returns ErrPathSyntax if path omits the leading "$"
// or has a malformed bracket index, and ErrMissing if any segment does
// not resolve.
func Extract(value any, path string) (any, error) {
	if !strings.HasPrefix(path, "$") {
		return nil, ErrPathSyntax
	}
	segments, err := parsePath(path[1:])
	if err != nil {
		return nil, err
	}

	cur := value
	for _, seg := range segments {
		switch {
		case seg.wildcard:
			arr, ok := cur.([]any)
			if !ok {
				return nil, ErrMissing
			}
			return arr, nil
		case seg.isIndex:
			arr, ok := cur.([]any)
			if !ok || seg.index < 0 || seg.index >= len(arr) {
				return nil, ErrMissing
			}
			cur = arr[seg.index]
		default:
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, ErrMissing
			}
			v, ok := obj[seg.key]
			if !ok {
				return nil, ErrMissing
			}
			cur = v
		}
	}
	return cur, nil
}

// parsePath splits "a.b[i].c[*]" into a flat sequence of key/index
// segments in evaluation order.
func parsePath(rest string) ([]pathSegment, error) {
	var segments []pathSegment
	rest = strings.TrimPrefix(rest, ".")

	for len(rest) > 0 {
		// Split off the next key up to '.' or '['.
		end := len(rest)
		for i, r := range rest {
			if r == '.' || r == '[' {
				end = i
				break
			}
		}
		key := rest[:end]
		if key != "" {
			segments = append(segments, pathSegment{key: key})
		}
		rest = rest[end:]

		for strings.HasPrefix(rest, "[") {
			close := strings.Index(rest, "]")
			if close < 0 {
				return nil, ErrPathSyntax
			}
			idxStr := rest[1:close]
			rest = rest[close+1:]
			if idxStr == "*" {
				segments = append(segments, pathSegment{wildcard: true})
				continue
			}
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, ErrPathSyntax
			}
			segments = append(segments, pathSegment{index: idx, isIndex: true})
		}

		rest = strings.TrimPrefix(rest, ".")
	}
	return segments, nil
}
