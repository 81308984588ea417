// Package models defines the database row types for the audio segment catalog.
package models

import "time"

// AudioSegment is one recorded speech segment: a playable file reference and
// the transcript of what it says. Company scopes a recording to one customer;
// an empty company means the segment is global. Category is the recording
// library folder (greeting, menu, number, ...).
type AudioSegment struct {
	ID         int64
	Company    string
	Category   string
	AudioRef   string
	Transcript string
	CreatedAt  time.Time
}
