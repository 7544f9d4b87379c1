package panorama

import (
	"errors"
	"testing"
)

func TestIDShard(t *testing.T) {
	tests := map[ID]string{
		"abc123": "ab",
		"ab":     "ab",
		"x":      "x",
	}
	for id, want := range tests {
		if got := id.Shard(); got != want {
			t.Errorf("ID(%q).Shard() = %q, want %q", id, got, want)
		}
	}
}

func TestIDValidate(t *testing.T) {
	for _, id := range []ID{"", "a", "../etc", "ab/cd", `ab\cd`, " abc", ".hidden"} {
		if err := id.Validate(); !errors.Is(err, ErrInvalidID) {
			t.Errorf("ID(%q).Validate() = %v, want ErrInvalidID", id, err)
		}
	}
	if err := ID("Fl9oN_ab-12").Validate(); err != nil {
		t.Errorf("valid id rejected: %v", err)
	}
}

func TestOutcomeDownloaded(t *testing.T) {
	for o, want := range map[Outcome]bool{
		OutcomeSkipped:         true,
		OutcomeSuccess:         true,
		OutcomeFallbackSuccess: true,
		OutcomeFailure:         false,
	} {
		if o.Downloaded() != want {
			t.Errorf("%s.Downloaded() = %v, want %v", o, o.Downloaded(), want)
		}
	}
}
