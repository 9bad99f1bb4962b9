package domain

import "time"

// TranscriptSegment is one unit of transcribed or translated speech. The
// same ID is delivered repeatedly with refined Text until Final is set.
type TranscriptSegment struct {
	ID                string
	Language          string
	Text              string
	FirstReceivedTime time.Time
	Final             bool
}
