package ordersync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLivePosition(t *testing.T) {
	page := &OrderPage{
		Orders: []OrderSnapshot{
			{ExternalID: 17250},
			{ExternalID: 17240},
			{ExternalID: 17231},
		},
		Page: 3,
	}

	pos := NewLivePosition(page)

	assert.Equal(t, 3, pos.LastPage)
	assert.Equal(t, int64(17250), pos.FirstID)
	assert.Equal(t, int64(17231), pos.LastID)
	assert.Equal(t, PositionSourceLive, pos.Source)
	assert.WithinDuration(t, time.Now(), pos.CapturedAt, time.Second)
	require.NoError(t, pos.Validate())
}

func TestSyncPosition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pos     SyncPosition
		wantErr bool
	}{
		{"valid live", SyncPosition{LastPage: 1, FirstID: 20, LastID: 1, Source: PositionSourceLive}, false},
		{"valid recovered", SyncPosition{LastPage: 7, FirstID: 100, LastID: 81, Source: PositionSourceRecovered}, false},
		{"page zero", SyncPosition{LastPage: 0, FirstID: 20, LastID: 1, Source: PositionSourceLive}, true},
		{"inverted range", SyncPosition{LastPage: 1, FirstID: 1, LastID: 20, Source: PositionSourceLive}, true},
		{"bad source", SyncPosition{LastPage: 1, FirstID: 20, LastID: 1, Source: "guessed"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pos.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSyncPosition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSyncPosition_Brackets(t *testing.T) {
	pos := &SyncPosition{LastPage: 2, FirstID: 200, LastID: 181, Source: PositionSourceLive}

	assert.True(t, pos.Brackets(181))
	assert.True(t, pos.Brackets(200))
	assert.True(t, pos.Brackets(190))
	assert.False(t, pos.Brackets(180))
	assert.False(t, pos.Brackets(201))
}

func TestSyncPosition_StaleAfter(t *testing.T) {
	pos := &SyncPosition{CapturedAt: time.Now().Add(-96 * time.Hour)}

	assert.True(t, pos.StaleAfter(72*time.Hour))
	assert.False(t, pos.StaleAfter(100*time.Hour))
	// Zero horizon disables staleness checks
	assert.False(t, pos.StaleAfter(0))
}

func TestSyncPosition_NewerThan(t *testing.T) {
	older := &SyncPosition{CapturedAt: time.Now().Add(-time.Hour)}
	newer := &SyncPosition{CapturedAt: time.Now()}

	assert.True(t, newer.NewerThan(older))
	assert.False(t, older.NewerThan(newer))
	assert.True(t, older.NewerThan(nil))
}
