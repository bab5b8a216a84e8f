package api

import (
	"strconv"
	"strings"

	"github.com/chfs/chfs/internal/model"
)

// parseRange parses a single-range "Range: bytes=start-end" header per
// RFC 7233. A missing header returns (nil, nil); multiple ranges are
// collapsed to the first, per §6.
func parseRange(header string) (*model.HTTPRange, error) {
	if header == "" {
		return nil, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, errInvalidRange
	}
	spec := strings.Split(header[len(prefix):], ",")[0]
	spec = strings.TrimSpace(spec)

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, errInvalidRange
	}

	if parts[0] == "" {
		// suffix range: "-N" means the last N bytes
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, errInvalidRange
		}
		return &model.HTTPRange{SuffixLength: &n}, nil
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, errInvalidRange
	}
	rng := &model.HTTPRange{Start: &start}
	if parts[1] != "" {
		end, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, errInvalidRange
		}
		rng.End = &end
	}
	return rng, nil
}

var errInvalidRange = rangeError("invalid range")

type rangeError string

func (e rangeError) Error() string { return string(e) }
