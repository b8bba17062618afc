package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClosureDetector(t *testing.T) {
	d := NewClosureDetector(
		[]string{"Admin@Support.example.com"},
		[]string{"I'm closing this case."},
	)

	tests := []struct {
		name   string
		sender string
		body   string
		closes bool
	}{
		{"exact phrase from admin", "admin@support.example.com", "I'm closing this case.", true},
		{"admin identity matching is case insensitive", "ADMIN@SUPPORT.EXAMPLE.COM", "I'm closing this case.", true},
		{"phrase matching is case insensitive", "admin@support.example.com", "i'm closing this case.", true},
		{"trailing period optional", "admin@support.example.com", "I'm closing this case", true},
		{"surrounding whitespace tolerated", "admin@support.example.com", "  I'm closing this case.  ", true},
		{"phrase embedded in larger message", "admin@support.example.com", "FYI, I'm closing this case. Thanks!", false},
		{"non-admin sender", "alice@example.com", "I'm closing this case.", false},
		{"unrelated admin message", "admin@support.example.com", "still investigating", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.closes, d.DetectsClosure(tt.sender, tt.body))
		})
	}
}

func TestIsAdmin(t *testing.T) {
	d := NewClosureDetector([]string{"admin@support.example.com", "U12345"}, nil)

	require.True(t, d.IsAdmin("admin@support.example.com"))
	require.True(t, d.IsAdmin(" u12345 "))
	require.False(t, d.IsAdmin("alice@example.com"))
	require.False(t, d.IsAdmin(""))
}
