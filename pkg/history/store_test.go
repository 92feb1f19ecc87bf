package history_test

import (
	"testing"

	"github.com/MrWong99/auricle/pkg/history"
)

func TestValidSlot(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"memory1", true},
		{"memory2", true},
		{"memory3", true},
		{"memory4", false},
		{"MEMORY1", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := history.ValidSlot(tc.name); got != tc.want {
			t.Errorf("ValidSlot(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPromptText(t *testing.T) {
	ex := history.Exchange{User: "what time is it?", Assistant: "It is noon."}
	want := "User: what time is it?\nAssistant: It is noon."
	if got := ex.PromptText(); got != want {
		t.Errorf("PromptText() = %q, want %q", got, want)
	}
}
