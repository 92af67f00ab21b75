// Package display defines what the engine pushes to its outputs.
package display

import "time"

type Mode string

const (
	ModeActive  Mode = "active"
	ModeStandby Mode = "standby"
)

// Frame is one update for display clients. Text is the active lyric line or
// a fallback (subtitle, then title) when HasLyric is false.
type Frame struct {
	Mode     Mode      `json:"mode"`
	Text     string    `json:"text"`
	HasLyric bool      `json:"has_lyric"`
	Title    string    `json:"title,omitempty"`
	Artist   string    `json:"artist,omitempty"`
	AppID    string    `json:"app_id,omitempty"`
	At       time.Time `json:"at"`
}

// Standby returns an empty standby frame.
func Standby(at time.Time) Frame {
	return Frame{Mode: ModeStandby, At: at}
}

// Equal compares everything but the timestamp.
func (f Frame) Equal(o Frame) bool {
	f.At, o.At = time.Time{}, time.Time{}
	return f == o
}

type Sink interface {
	Show(Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Frame)

func (f SinkFunc) Show(fr Frame) { f(fr) }

// Fanout shows every frame on each sink in order.
type Fanout []Sink

func (f Fanout) Show(fr Frame) {
	for _, s := range f {
		if s != nil {
			s.Show(fr)
		}
	}
}
