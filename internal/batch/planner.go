// Package batch splits a segment sequence into bounded-size batches used as
// the unit of external-call granularity.
package batch

import (
	"fmt"

	"github.com/kweilin/lessonforge/internal/lesson"
)

// DefaultSize is the default number of segments per batch. It keeps a single
// request small enough that the semantic service response is not truncated.
const DefaultSize = 15

// Plan partitions segments into ceil(N/size) contiguous slices preserving
// the original order. The returned slices alias the input; callers must not
// reorder segments within them. A non-positive size is a configuration bug.
func Plan(segments []lesson.Segment, size int) ([][]lesson.Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be greater than 0, got %d", size)
	}
	if len(segments) == 0 {
		return nil, nil
	}

	ret := make([][]lesson.Segment, 0, (len(segments)+size-1)/size)
	for i := 0; i < len(segments); i += size {
		end := min(i+size, len(segments))
		ret = append(ret, segments[i:end])
	}
	return ret, nil
}
