package broadcast

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRepository marks a failed subscription read. It aborts the whole
// dispatch before any transport call; callers can distinguish it from an
// empty-audience success.
var ErrRepository = errors.New("subscription repository failure")

const (
	MaxTitleLen = 120
	MaxBodyLen  = 2000
)

// Message is one broadcast request. Transient: built per call, never
// persisted.
type Message struct {
	Title  string
	Body   string
	URL    string
	Filter TargetFilter
}

// NewMessage validates and normalizes caller input. URL defaults to "/",
// filter defaults to all.
func NewMessage(title, body, url, filter string) (Message, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" || len(title) > MaxTitleLen {
		return Message{}, fmt.Errorf("title must be 1..%d chars", MaxTitleLen)
	}
	if body == "" || len(body) > MaxBodyLen {
		return Message{}, fmt.Errorf("body must be 1..%d chars", MaxBodyLen)
	}
	if strings.TrimSpace(url) == "" {
		url = "/"
	}
	f, err := ParseFilter(filter)
	if err != nil {
		return Message{}, err
	}
	return Message{Title: title, Body: body, URL: url, Filter: f}, nil
}

// Result aggregates one dispatch call.
//
// Total is the audience size after filtering. On a completed dispatch
// Sent+Failed == Total; a cancelled dispatch reports the partial tallies
// accumulated so far, so Sent+Failed < Total identifies interruption.
type Result struct {
	Total  int      `json:"total"`
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Pruned []string `json:"-"`
}

func (r Result) String() string {
	return fmt.Sprintf("broadcast done: total=%d sent=%d failed=%d pruned=%d",
		r.Total, r.Sent, r.Failed, len(r.Pruned))
}

// Config bounds fan-out and decorates the shared payload.
type Config struct {
	Workers    int
	RatePerSec int
	Icon       string
	Badge      string
}
