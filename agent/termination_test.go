package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminationSignal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"exact token", "TERMINATED", true},
		{"token with reason", "TERMINATED - nothing to add", true},
		{"lowercase", "terminated", true},
		{"mixed case", "Terminated - done here", true},
		{"leading whitespace", "   \n\tTERMINATED", true},
		{"token mid-text", "The process was TERMINATED by the admin", false},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"shorter than token", "TERM", false},
		{"normal answer", "Here is the contact you asked for.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTerminationSignal(tt.text))
		})
	}
}
