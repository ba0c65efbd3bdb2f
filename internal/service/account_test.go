package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"chat-lottery-bot/internal/model"
)

func TestBaseValue(t *testing.T) {
	svc := NewAccountService(nil, nil, 50, 2)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		joinedAt time.Time
		want     int64
	}{
		{"brand new member gets the floor", now, 50},
		{"partial day does not count", now.Add(-23 * time.Hour), 50},
		{"one full day", now.Add(-25 * time.Hour), 52},
		{"ten days", now.AddDate(0, 0, -10), 70},
		{"future join date clamps to the floor", now.Add(48 * time.Hour), 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.BaseValue(tt.joinedAt, now))
		})
	}
}

func TestBalanceOf(t *testing.T) {
	svc := NewAccountService(nil, nil, 50, 2)

	p := &model.Participant{
		ID:               1,
		JoinedAt:         time.Now().AddDate(0, 0, -5),
		ReputationOffset: -30,
	}
	// 50 + 2*5 - 30
	assert.Equal(t, int64(30), svc.BalanceOf(p))

	p.ReputationOffset = 0
	assert.Equal(t, int64(60), svc.BalanceOf(p))
}
