package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenCache_TryExtract(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCSRF   string
		wantCityID string
	}{
		{
			name:       "json form",
			body:       `{"actionRequest":"d41d8cd98f00","currentCityId":"1234"}`,
			wantCSRF:   "d41d8cd98f00",
			wantCityID: "1234",
		},
		{
			name:     "attribute form",
			body:     `var actionRequest = 'abc123DEF';`,
			wantCSRF: "abc123DEF",
		},
		{
			name:       "city only",
			body:       `currentCityId: 998`,
			wantCityID: "998",
		},
		{
			name: "neither",
			body: `<html><body>nothing here</body></html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cache := NewTokenCache()

			// Act
			cache.TryExtract(tt.body)

			// Assert
			assert.Equal(t, tt.wantCSRF, cache.CSRF())
			assert.Equal(t, tt.wantCityID, cache.CityID())
		})
	}
}

func TestTokenCache_PartialUpdateKeepsOldFields(t *testing.T) {
	cache := NewTokenCache()
	cache.TryExtract(`{"actionRequest":"first","currentCityId":"11"}`)

	// A body carrying only a city id must not clobber the token
	cache.TryExtract(`currentCityId: 22`)

	assert.Equal(t, "first", cache.CSRF())
	assert.Equal(t, "22", cache.CityID())
}

func TestTokenCache_InvalidateCSRF(t *testing.T) {
	cache := NewTokenCache()
	cache.Seed("tok", "5")

	cache.InvalidateCSRF()

	assert.Empty(t, cache.CSRF())
	assert.Equal(t, "5", cache.CityID(), "invalidation only clears the token")
}

func TestMarkers(t *testing.T) {
	assert.True(t, IsExpired(`<form name="sessionHasExpired">`))
	assert.True(t, IsExpired(`<body id="loggedOutPage">`))
	assert.False(t, IsExpired(`<a href="index.php?logout">Log out</a>`),
		"a logout link on a live page is not an expired session")

	assert.True(t, IsMaintenance("Backup in progress, try again later"))
	assert.False(t, IsMaintenance("all fine"))

	assert.True(t, IsStaleToken(`["provideFeedback",[{"type":"error","text":"WRONG_REQUEST_ID"}]]`))
	assert.False(t, IsStaleToken("ok"))

	assert.True(t, IsVacation(`<div class="umod_vacation">`))
	assert.False(t, IsVacation(`<div class="city">`))
}
