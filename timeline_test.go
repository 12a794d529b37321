package echos_test

import (
	"errors"
	"math"
	"testing"

	"github.com/echosdaw/echos"
)

const tolerance = 1e-9

func TestBeatsToSeconds(t *testing.T) {
	for _, tc := range []struct {
		name   string
		tempos []echos.Tempo
		beats  float64
		want   float64
	}{
		{"constant", []echos.Tempo{{0, 120}}, 4, 2},
		{"two segments", []echos.Tempo{{0, 120}, {8, 60}}, 10, 6},
		{"before change", []echos.Tempo{{0, 120}, {8, 60}}, 6, 3},
		{"at change", []echos.Tempo{{0, 120}, {8, 60}}, 8, 4},
		{"negative", []echos.Tempo{{0, 120}}, -1, 0},
		{"empty uses default", nil, 2, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := echos.TimelineState{Tempos: tc.tempos}
			if got := s.BeatsToSeconds(tc.beats); math.Abs(got-tc.want) > tolerance {
				t.Fatalf("BeatsToSeconds(%v) = %v, want %v", tc.beats, got, tc.want)
			}
		})
	}
}

func TestSecondsToBeatsRoundTrip(t *testing.T) {
	maps := [][]echos.Tempo{
		{{0, 120}},
		{{0, 120}, {8, 60}},
		{{0, 90}, {3.5, 140}, {3.5, 200}, {17, 45.5}},
	}
	for _, tempos := range maps {
		s := echos.TimelineState{Tempos: tempos, TimeSignatures: []echos.TimeSignature{echos.DefaultTimeSignature}}
		if err := s.Validate(); err != nil {
			t.Fatalf("tempo map %v should be valid: %v", tempos, err)
		}
		for b := 0.0; b < 40; b += 0.37 {
			got := s.SecondsToBeats(s.BeatsToSeconds(b))
			if math.Abs(got-b) > 1e-6 {
				t.Fatalf("round trip of beat %v through %v gave %v", b, tempos, got)
			}
		}
	}
}

func TestTempoAtIsFloor(t *testing.T) {
	s := echos.TimelineState{Tempos: []echos.Tempo{{0, 100}, {4, 150}, {8, 80}}}
	for _, tc := range []struct {
		beat float64
		want float64
	}{{0, 100}, {3.99, 100}, {4, 150}, {7, 150}, {8, 80}, {1000, 80}, {-2, 100}} {
		if got := s.TempoAt(tc.beat); got != tc.want {
			t.Errorf("TempoAt(%v) = %v, want %v", tc.beat, got, tc.want)
		}
	}
	if got := (echos.TimelineState{}).TempoAt(3); got != echos.DefaultTempo.BPM {
		t.Errorf("empty map TempoAt = %v, want default %v", got, echos.DefaultTempo.BPM)
	}
	ts := echos.TimelineState{TimeSignatures: []echos.TimeSignature{{0, 4, 4}, {16, 3, 4}}}
	if got := ts.TimeSignatureAt(17); got.Numerator != 3 {
		t.Errorf("TimeSignatureAt(17) = %v, want 3/4", got)
	}
}

func TestTimelineValidate(t *testing.T) {
	sig := []echos.TimeSignature{echos.DefaultTimeSignature}
	for _, tc := range []struct {
		name  string
		state echos.TimelineState
		ok    bool
	}{
		{"default", echos.DefaultTimelineState(), true},
		{"no tempos", echos.TimelineState{TimeSignatures: sig}, false},
		{"no signatures", echos.TimelineState{Tempos: []echos.Tempo{{0, 120}}}, false},
		{"first not zero", echos.TimelineState{Tempos: []echos.Tempo{{1, 120}}, TimeSignatures: sig}, false},
		{"unsorted", echos.TimelineState{Tempos: []echos.Tempo{{0, 120}, {8, 100}, {4, 90}}, TimeSignatures: sig}, false},
		{"zero bpm", echos.TimelineState{Tempos: []echos.Tempo{{0, 0}}, TimeSignatures: sig}, false},
		{"bad signature", echos.TimelineState{Tempos: []echos.Tempo{{0, 120}}, TimeSignatures: []echos.TimeSignature{{0, 0, 4}}}, false},
		{"nan bpm", echos.TimelineState{Tempos: []echos.Tempo{{0, 120}, {4, math.NaN()}}, TimeSignatures: sig}, false},
		{"infinite bpm", echos.TimelineState{Tempos: []echos.Tempo{{0, math.Inf(1)}}, TimeSignatures: sig}, false},
		{"nan beat", echos.TimelineState{Tempos: []echos.Tempo{{0, 120}, {math.NaN(), 90}}, TimeSignatures: sig}, false},
		{"infinite beat", echos.TimelineState{Tempos: []echos.Tempo{{0, 120}, {math.Inf(1), 90}}, TimeSignatures: sig}, false},
		{"nan signature beat", echos.TimelineState{Tempos: []echos.Tempo{{0, 120}}, TimeSignatures: []echos.TimeSignature{{0, 4, 4}, {math.NaN(), 3, 4}}}, false},
		{"equal beats", echos.TimelineState{Tempos: []echos.Tempo{{0, 120}, {4, 100}, {4, 90}}, TimeSignatures: sig}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.state.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, echos.ErrInvalidTimeline) {
				t.Fatalf("expected ErrInvalidTimeline, got %v", err)
			}
		})
	}
}
