package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromptText(t *testing.T) {
	assert.Equal(t, "erase? [N/y]:", promptText("erase?", []string{No, Yes}))
	assert.Equal(t, "go? [Y/n]:", promptText("go?", yesNoConstraints))
}

func TestMatch(t *testing.T) {
	tests := []struct {
		given    string
		expected string
	}{
		{"", No},
		{"y", Yes},
		{" Y ", Yes},
		{"yes", No},
		{"n", No},
	}
	for _, tt := range tests {
		t.Run(tt.given, func(t *testing.T) {
			assert.Equal(t, tt.expected, match(tt.given, []string{No, Yes}))
		})
	}
}
