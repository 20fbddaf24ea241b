package shared

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEMPO
// ══════════════════════════════════════════════════════════════════════════════

// MaxTempo is the upper bound accepted for a logged tempo.
const MaxTempo = 400

// Tempo is a practice tempo in beats per minute.
type Tempo int

// IsValid returns true if the tempo is positive and within bounds.
func (t Tempo) IsValid() bool {
	return t > 0 && t <= MaxTempo
}

// Int returns the tempo as int.
func (t Tempo) Int() int {
	return int(t)
}

// String returns a display form, e.g. "120 BPM".
func (t Tempo) String() string {
	return fmt.Sprintf("%d BPM", int(t))
}

// NewTempo creates a validated Tempo.
func NewTempo(bpm int) (Tempo, error) {
	t := Tempo(bpm)
	if !t.IsValid() {
		return 0, ErrInvalidTempo
	}
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SECONDS
// ══════════════════════════════════════════════════════════════════════════════

// Seconds is a practice duration in whole seconds.
type Seconds int

// IsValid returns true if the duration is positive.
func (s Seconds) IsValid() bool {
	return s > 0
}

// Int returns the number of seconds as int.
func (s Seconds) Int() int {
	return int(s)
}

// Duration converts to time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(s) * time.Second
}

// Hours returns the duration in fractional hours.
func (s Seconds) Hours() float64 {
	return float64(s) / 3600
}

// NewSeconds creates validated Seconds.
func NewSeconds(seconds int) (Seconds, error) {
	s := Seconds(seconds)
	if !s.IsValid() {
		return 0, ErrInvalidDuration
	}
	return s, nil
}
