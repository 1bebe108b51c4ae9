package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// errMalformedRange marks a Range header that is not valid bytes-unit
	// syntax. Callers ignore the header and serve the full body.
	errMalformedRange = errors.New("malformed range header")

	// errUnsatisfiableRange marks a syntactically valid header whose ranges
	// all fall outside the object. Callers answer 416.
	errUnsatisfiableRange = errors.New("unsatisfiable range")
)

// byteRange is one satisfiable range against an object of known size.
type byteRange struct {
	start  int64
	length int64
}

func (r byteRange) end() int64 {
	return r.start + r.length - 1
}

// contentRange renders the Content-Range value for a 206 response.
func (r byteRange) contentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.start, r.end(), size)
}

// parseRange parses an RFC 7233 Range header against an object of the given
// size. Suffix ranges ("-N") and open-ended ranges ("N-") are supported; an
// end past the object is clamped to size-1. It returns errMalformedRange for
// bad syntax and errUnsatisfiableRange when no parsed range overlaps the
// object.
func parseRange(header string, size int64) ([]byteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, errMalformedRange
	}

	var ranges []byteRange
	unsatisfiable := false
	for _, spec := range strings.Split(header[len(prefix):], ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			return nil, errMalformedRange
		}
		dash := strings.Index(spec, "-")
		if dash < 0 {
			return nil, errMalformedRange
		}
		startText, endText := strings.TrimSpace(spec[:dash]), strings.TrimSpace(spec[dash+1:])

		if startText == "" {
			// Suffix range: last N bytes. "-0" is explicitly
			// unsatisfiable.
			n, err := strconv.ParseInt(endText, 10, 64)
			if err != nil || n < 0 {
				return nil, errMalformedRange
			}
			if n == 0 {
				unsatisfiable = true
				continue
			}
			if n > size {
				n = size
			}
			ranges = append(ranges, byteRange{start: size - n, length: n})
			continue
		}

		start, err := strconv.ParseInt(startText, 10, 64)
		if err != nil || start < 0 {
			return nil, errMalformedRange
		}
		if start >= size {
			unsatisfiable = true
			continue
		}

		if endText == "" {
			// Open-ended: from start to the last byte.
			ranges = append(ranges, byteRange{start: start, length: size - start})
			continue
		}
		end, err := strconv.ParseInt(endText, 10, 64)
		if err != nil || end < 0 {
			return nil, errMalformedRange
		}
		if start > end {
			return nil, errMalformedRange
		}
		if end >= size {
			end = size - 1
		}
		ranges = append(ranges, byteRange{start: start, length: end - start + 1})
	}

	if len(ranges) == 0 {
		if unsatisfiable {
			return nil, errUnsatisfiableRange
		}
		return nil, errMalformedRange
	}
	return ranges, nil
}
