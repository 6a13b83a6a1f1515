package clock

import (
	"testing"
	"time"
)

func TestFake(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if !f.Now().Equal(start) {
		t.Errorf("Expected %v, but got %v", start, f.Now())
	}

	f.Advance(36 * time.Hour)
	want := start.Add(36 * time.Hour)
	if !f.Now().Equal(want) {
		t.Errorf("Expected %v after Advance, but got %v", want, f.Now())
	}

	f.Set(start)
	if !f.Now().Equal(start) {
		t.Errorf("Expected %v after Set, but got %v", start, f.Now())
	}
}

func TestReal(t *testing.T) {
	before := time.Now()
	got := Real().Now()
	if got.Before(before) {
		t.Errorf("Expected real clock to be at or after %v, but got %v", before, got)
	}
}
