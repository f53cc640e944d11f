package matcher

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSimilarity(t *testing.T) {
	tc := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "song", b: "song", want: 1},
		{name: "disjoint", a: "abc", b: "xyz", want: 0},
		{name: "both empty", a: "", b: "", want: 0},
		{name: "one empty", a: "abc", b: "", want: 0},
		{name: "prefix", a: "abc", b: "abcd", want: 6.0 / 7.0},
		{name: "subsequence", a: "ace", b: "abcde", want: 6.0 / 8.0},
		{name: "runes not bytes", a: "café", b: "cafe", want: 6.0 / 8.0},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if !approx(got, tt.want) {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestScore(t *testing.T) {
	t.Run("exact match is maximal", func(t *testing.T) {
		pairs := [][2]string{
			{"Song A", "Artist X"},
			{"x", "y"},
			{"  Bohemian Rhapsody ", "QUEEN"},
		}
		for _, p := range pairs {
			if got := Score(p[0], p[1], p[0], p[1]); got != 100 {
				t.Errorf("Score(%q, %q) against itself = %v, want 100", p[0], p[1], got)
			}
		}
	})

	t.Run("normalizes case and whitespace", func(t *testing.T) {
		a := Score("Song A", "Artist X", "song a", "artist x")
		b := Score("  SONG A  ", "ARTIST X", "Song A", "Artist X")
		if a != 100 || b != 100 {
			t.Errorf("expected normalized inputs to score 100, got %v and %v", a, b)
		}
	})

	t.Run("total on empty input", func(t *testing.T) {
		inputs := [][4]string{
			{"", "", "", ""},
			{"", "", "Song", "Artist"},
			{"Song", "Artist", "", ""},
			{"Song", "", "Song", ""},
		}
		for _, in := range inputs {
			got := Score(in[0], in[1], in[2], in[3])
			if got < 0 || got > 100 || math.IsNaN(got) {
				t.Errorf("Score(%q) = %v, want value in [0, 100]", in, got)
			}
		}
		if got := Score("", "", "", ""); got != 0 {
			t.Errorf("all-empty score = %v, want 0", got)
		}
	})

	t.Run("title substring bonus", func(t *testing.T) {
		// source title inside candidate title earns the bonus, the reverse does not
		with := Score("Song", "Nobody", "Song (Official Video)", "Channel")
		without := Score("Song (Official Video)", "Nobody", "Song", "Channel")
		if with <= without {
			t.Errorf("expected bonus when source title is in candidate title: %v <= %v", with, without)
		}
	})

	t.Run("artist substring bonus", func(t *testing.T) {
		// no title or artist similarity, so only the bonus remains
		if got := Score("t", "ab", "ab", "zz"); !approx(got, 10) {
			t.Errorf("expected 10, got %v", got)
		}
		if got := Score("t", "cd", "ab", "zz"); !approx(got, 0) {
			t.Errorf("expected 0, got %v", got)
		}
	})

	t.Run("weights", func(t *testing.T) {
		// exact title, unrelated artist: 60 + 10 title bonus
		if got := Score("abc", "xyz", "abc", "qqq"); !approx(got, 70) {
			t.Errorf("expected 70, got %v", got)
		}
		// unrelated title, exact artist: 40
		if got := Score("abc", "xyz", "qqq", "xyz"); !approx(got, 40) {
			t.Errorf("expected 40, got %v", got)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		first := Score("Song B", "Artist Y", "Song Bee", "Artist Why")
		for range 10 {
			if got := Score("Song B", "Artist Y", "Song Bee", "Artist Why"); got != first {
				t.Fatalf("score changed between runs: %v != %v", got, first)
			}
		}
	})
}
