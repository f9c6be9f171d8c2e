package episodeid

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	prefix = "25"

	workWidth   = 6
	orderWidth  = 2
	indexWidth  = 4
	totalDigits = len(prefix) + workWidth + orderWidth + indexWidth

	maxWork  = 999999
	maxOrder = 99
	maxIndex = 9999
)

// ErrOverflow reports a component that does not fit its fixed width.
var ErrOverflow = errors.New("episode id component out of range")

// Parts are the decoded components of an episode identity.
type Parts struct {
	WorkID      int64
	SourceOrder int
	Index       int
}

// Encode returns the identity for the given work, source order and index.
func Encode(workID int64, sourceOrder, index int) (int64, error) {
	switch {
	case workID < 0 || workID > maxWork:
		return 0, fmt.Errorf("%w: work id %d", ErrOverflow, workID)
	case sourceOrder < 0 || sourceOrder > maxOrder:
		return 0, fmt.Errorf("%w: source order %d", ErrOverflow, sourceOrder)
	case index < 0 || index > maxIndex:
		return 0, fmt.Errorf("%w: episode index %d", ErrOverflow, index)
	}
	raw := fmt.Sprintf("%s%06d%02d%04d", prefix, workID, sourceOrder, index)
	return strconv.ParseInt(raw, 10, 64)
}

// MustEncode is Encode for callers that have already validated their inputs.
func MustEncode(workID int64, sourceOrder, index int) int64 {
	id, err := Encode(workID, sourceOrder, index)
	if err != nil {
		panic(err)
	}
	return id
}

// Decode splits an identity back into its components.
func Decode(id int64) (Parts, error) {
	raw := strconv.FormatInt(id, 10)
	if len(raw) != totalDigits || raw[:len(prefix)] != prefix {
		return Parts{}, fmt.Errorf("not an episode identity: %d", id)
	}
	rest := raw[len(prefix):]
	work, _ := strconv.ParseInt(rest[:workWidth], 10, 64)
	order, _ := strconv.Atoi(rest[workWidth : workWidth+orderWidth])
	index, _ := strconv.Atoi(rest[workWidth+orderWidth:])
	return Parts{WorkID: work, SourceOrder: order, Index: index}, nil
}

// TrackPath returns the web path of an episode's track file.
func TrackPath(workID, episodeID int64) string {
	return fmt.Sprintf("/danmaku/%d/%d.xml", workID, episodeID)
}
