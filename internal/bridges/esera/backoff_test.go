package esera

import (
	"testing"
	"time"
)

func TestBackoff_GrowsAndCaps(t *testing.T) {
	tests := []struct {
		name    string
		initial time.Duration
		max     time.Duration
		want    []time.Duration
	}{
		{
			name:    "doubling below cap",
			initial: time.Second,
			max:     time.Minute,
			want:    []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second},
		},
		{
			name:    "capped",
			initial: time.Second,
			max:     3 * time.Second,
			want:    []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second},
		},
		{
			name:    "max below initial",
			initial: 5 * time.Second,
			max:     time.Second,
			want:    []time.Duration{5 * time.Second, 5 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackoff(tt.initial, tt.max)
			for i, want := range tt.want {
				if got := b.Next(); got != want {
					t.Errorf("Next() #%d = %v, want %v", i+1, got, want)
				}
			}
		})
	}
}

func TestBackoff_ThreeFailuresThenSuccess(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second)

	var prev time.Duration
	for i := 0; i < 3; i++ {
		d := b.Next()
		if i > 0 && d <= prev && d != time.Second {
			t.Errorf("delay #%d = %v, not greater than %v and not capped", i+1, d, prev)
		}
		prev = d
	}

	b.Reset()
	if got := b.Next(); got != 100*time.Millisecond {
		t.Errorf("Next() after Reset = %v, want 100ms", got)
	}
}

func TestBackoff_NonPositiveInitial(t *testing.T) {
	b := NewBackoff(0, 0)
	if got := b.Next(); got != time.Second {
		t.Errorf("Next() = %v, want 1s default", got)
	}
}
