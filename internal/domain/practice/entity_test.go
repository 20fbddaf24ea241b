package practice

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

func validParams() NewSessionParams {
	return NewSessionParams{
		ID:              "s-1",
		ExerciseID:      "ex-1",
		Tempo:           110,
		DurationSeconds: 120,
		PracticedAt:     time.Date(2025, 8, 18, 18, 0, 0, 0, time.UTC),
	}
}

func TestNewSession_Valid(t *testing.T) {
	s, err := NewSession(validParams())
	require.NoError(t, err)
	assert.Equal(t, shared.Tempo(110), s.Tempo)
	assert.Equal(t, 2*time.Minute, s.DurationSeconds.Duration())
}

func TestNewSession_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *NewSessionParams)
		want   error
	}{
		{"missing exercise", func(p *NewSessionParams) { p.ExerciseID = " " }, shared.ErrMissingExercise},
		{"missing timestamp", func(p *NewSessionParams) { p.PracticedAt = time.Time{} }, shared.ErrMissingTimestamp},
		{"zero tempo", func(p *NewSessionParams) { p.Tempo = 0 }, shared.ErrInvalidTempo},
		{"negative tempo", func(p *NewSessionParams) { p.Tempo = -5 }, shared.ErrInvalidTempo},
		{"zero duration", func(p *NewSessionParams) { p.DurationSeconds = 0 }, shared.ErrInvalidDuration},
		{"missing id", func(p *NewSessionParams) { p.ID = "" }, shared.ErrInvalidID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			_, err := NewSession(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestSortedByTime_StableAndCopy(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2025, 8, day, 0, 0, 0, 0, time.UTC) }
	in := []Session{
		{ID: "c", PracticedAt: d(3)},
		{ID: "a1", PracticedAt: d(1)},
		{ID: "a2", PracticedAt: d(1)},
	}

	out := SortedByTime(in)
	assert.Equal(t, []string{"a1", "a2", "c"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.Equal(t, "c", in[0].ID)
}

func TestExercisesInSegment(t *testing.T) {
	ex := []Exercise{
		{ID: "1", SegmentID: "segment-1"},
		{ID: "2", SegmentID: "segment-2"},
		{ID: "3"},
	}
	got := ExercisesInSegment(ex, "segment-1")
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.Empty(t, ExercisesInSegment(ex, ""))
}

func TestCurrentSegment(t *testing.T) {
	segs := []Segment{
		{ID: "segment-2", Order: 2, StartDate: time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 4, 17, 0, 0, 0, 0, time.UTC)},
		{ID: "segment-1", Order: 1, StartDate: time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 12, 17, 0, 0, 0, 0, time.UTC)},
	}

	s, ok := CurrentSegment(segs, time.Date(2025, 12, 17, 20, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "segment-1", s.ID)

	_, ok = CurrentSegment(segs, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}
