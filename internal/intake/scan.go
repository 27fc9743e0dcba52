// Package intake holds the station-side lot editor: barcode scan detection
// and the in-progress rows of a lot before it is created.
package intake

import (
	"time"
	"unicode"
)

const (
	DefaultMinScanLength = 3
	// DefaultMaxKeyGap separates scanner bursts from human typing.
	DefaultMaxKeyGap = 50 * time.Millisecond
)

// ScanBuffer turns a keystroke stream into scanned serials. A scan is a burst
// of keys, each within MaxKeyGap of the previous one, ended by Enter or Tab.
type ScanBuffer struct {
	MinLength int
	MaxKeyGap time.Duration

	buf  []rune
	last time.Time
}

func NewScanBuffer(minLength int, maxKeyGap time.Duration) *ScanBuffer {
	if minLength <= 0 {
		minLength = DefaultMinScanLength
	}
	if maxKeyGap <= 0 {
		maxKeyGap = DefaultMaxKeyGap
	}
	return &ScanBuffer{MinLength: minLength, MaxKeyGap: maxKeyGap}
}

func isTerminator(r rune) bool { return r == '\n' || r == '\r' || r == '\t' }

// Feed consumes one key pressed at t. It returns the serial and true when the
// key terminates a scan long enough to count.
func (s *ScanBuffer) Feed(r rune, t time.Time) (string, bool) {
	if len(s.buf) > 0 && t.Sub(s.last) > s.MaxKeyGap {
		// too slow: a person typing, start over from this key
		s.buf = s.buf[:0]
	}
	s.last = t

	if isTerminator(r) {
		serial := string(s.buf)
		s.buf = s.buf[:0]
		if len([]rune(serial)) >= s.MinLength {
			return serial, true
		}
		return "", false
	}
	if unicode.IsPrint(r) {
		s.buf = append(s.buf, r)
	}
	return "", false
}

// FeedLine feeds a whole line received at t, as line-buffered terminals and
// keyboard-wedge scanners deliver it, followed by Enter.
func (s *ScanBuffer) FeedLine(line string, t time.Time) (string, bool) {
	s.Reset()
	for _, r := range line {
		if isTerminator(r) {
			break
		}
		s.Feed(r, t)
	}
	return s.Feed('\n', t)
}

// Reset drops any partial input.
func (s *ScanBuffer) Reset() {
	s.buf = s.buf[:0]
	s.last = time.Time{}
}

// Pending returns the partial input not yet terminated.
func (s *ScanBuffer) Pending() string { return string(s.buf) }
