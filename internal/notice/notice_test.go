package notice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestFeed_RaiseLocalizes(t *testing.T) {
	fa := NewFeed(language.Persian)
	n := fa.Raise(LevelError, CodeAddressLookupFailed)

	assert.Equal(t, "خطا در دریافت آدرس", n.Message)
	assert.Equal(t, LevelError, n.Level)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Time.IsZero())

	en := NewFeed(language.English)
	assert.Equal(t, "Please enable location tracking first", en.Raise(LevelInfo, CodeEnableTrackingFirst).Message)
}

func TestFeed_DrainEmptiesQueue(t *testing.T) {
	f := NewFeed(language.English)
	f.Raise(LevelInfo, CodeTrackingStarting)
	f.Raise(LevelSuccess, CodePositionUpdated)

	assert.Equal(t, 1, f.Count(CodePositionUpdated))

	drained := f.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, CodeTrackingStarting, drained[0].Code)
	assert.Empty(t, f.Pending())
	assert.NotNil(t, f.Drain())
}

func TestFeed_DropsOldestWhenFull(t *testing.T) {
	f := NewFeed(language.English)
	f.capacity = 2
	f.Raise(LevelInfo, CodeTrackingStarting)
	f.Raise(LevelInfo, CodeTrackingStopped)
	f.Raise(LevelError, CodePositionFailed)

	pending := f.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, CodeTrackingStopped, pending[0].Code)
	assert.Equal(t, CodePositionFailed, pending[1].Code)
}

func TestMatch(t *testing.T) {
	assert.Equal(t, language.Persian, Match(""))
	assert.Equal(t, language.Persian, Match("fa"))
	assert.Equal(t, language.Persian, Match("fa-IR"))
	assert.Equal(t, language.English, Match("en-US"))
	assert.Equal(t, language.Persian, Match("not a tag!"))
}

func TestEveryCodeHasBothLanguages(t *testing.T) {
	for code, byLang := range messages {
		assert.Contains(t, byLang, language.Persian, code)
		assert.Contains(t, byLang, language.English, code)
	}
}
