package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/case-service/internal/domain"
)

func TestTimeRule(t *testing.T) {
	rule := timeRule{threshold: 48 * time.Hour}
	last := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		c     domain.Case
		now   time.Time
		fires bool
	}{
		{
			name:  "under threshold",
			c:     domain.Case{LastCustomerMessageAt: last, ConsecutiveCustomerMessages: 1},
			now:   last.Add(47 * time.Hour),
			fires: false,
		},
		{
			name:  "exactly at threshold",
			c:     domain.Case{LastCustomerMessageAt: last, ConsecutiveCustomerMessages: 1},
			now:   last.Add(48 * time.Hour),
			fires: true,
		},
		{
			name:  "past threshold",
			c:     domain.Case{LastCustomerMessageAt: last, ConsecutiveCustomerMessages: 2},
			now:   last.Add(72 * time.Hour),
			fires: true,
		},
		{
			name:  "admin already replied",
			c:     domain.Case{LastCustomerMessageAt: last, ConsecutiveCustomerMessages: 0},
			now:   last.Add(72 * time.Hour),
			fires: false,
		},
		{
			name:  "no customer message yet",
			c:     domain.Case{ConsecutiveCustomerMessages: 1},
			now:   last.Add(72 * time.Hour),
			fires: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.fires, rule.Fires(&tt.c, nil, tt.now))
		})
	}
}

func TestCountRule(t *testing.T) {
	rule := countRule{threshold: 3}

	require.False(t, rule.Fires(&domain.Case{ConsecutiveCustomerMessages: 2}, nil, time.Time{}))
	require.True(t, rule.Fires(&domain.Case{ConsecutiveCustomerMessages: 3}, nil, time.Time{}))
	require.True(t, rule.Fires(&domain.Case{ConsecutiveCustomerMessages: 5}, nil, time.Time{}))
}

func TestKeywordRule(t *testing.T) {
	rule := keywordRule{keywords: []string{"urgent", "immediately"}}

	customer := func(body string) *domain.Message {
		return &domain.Message{SenderRole: domain.RoleCustomer, Body: body}
	}

	require.True(t, rule.Fires(&domain.Case{}, customer("this is URGENT"), time.Time{}))
	require.True(t, rule.Fires(&domain.Case{}, customer("fix it Immediately please"), time.Time{}))
	require.True(t, rule.Fires(&domain.Case{}, customer("urgently needed"), time.Time{}))
	require.False(t, rule.Fires(&domain.Case{}, customer("no rush at all"), time.Time{}))
	require.False(t, rule.Fires(&domain.Case{}, &domain.Message{SenderRole: domain.RoleAdmin, Body: "urgent"}, time.Time{}))
	require.False(t, rule.Fires(&domain.Case{}, nil, time.Time{}))
}
