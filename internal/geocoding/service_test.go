package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/geo"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewService(Config{
		BaseURL:   srv.URL,
		UserAgent: "ridemap-test",
		Language:  "fa",
		Timeout:   2 * time.Second,
	}, nil)
}

func TestReverse_Success(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "35.700000", q.Get("lat"))
		assert.Equal(t, "51.400000", q.Get("lon"))
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "1", q.Get("addressdetails"))
		assert.Equal(t, "fa", q.Get("accept-language"))
		assert.Equal(t, "ridemap-test", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"display_name": "Valiasr St, Tehran, Iran",
			"address": {"road": "Valiasr St", "neighbourhood": "Abbasabad", "city": "Tehran", "country": "Iran"}
		}`))
	})

	addr, err := svc.Reverse(context.Background(), geo.Coordinate{Lat: 35.70, Lng: 51.40})
	require.NoError(t, err)
	assert.Equal(t, "Valiasr St, Tehran, Iran", addr.DisplayName)
	assert.Equal(t, "Tehran", addr.Address.City)
	assert.Equal(t, "Tehran Abbasabad Valiasr St", addr.Label())
}

func TestReverse_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    apperrors.ErrorType
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: apperrors.ErrorTypeBadResponse,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"display_name":`))
			},
			want: apperrors.ErrorTypeBadResponse,
		},
		{
			name: "error payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
			},
			want: apperrors.ErrorTypeBadResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.handler)
			addr, err := svc.Reverse(context.Background(), geo.DefaultCenter)
			assert.Nil(t, addr)
			assert.True(t, apperrors.IsErrorType(err, tt.want), "got %v", err)
		})
	}
}

func TestReverse_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	svc := NewService(Config{BaseURL: base, Timeout: time.Second}, nil)
	_, err := svc.Reverse(context.Background(), geo.DefaultCenter)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNetwork))
	assert.True(t, apperrors.IsUpstreamFailure(err))
}

func TestReverse_InvalidCoordinate(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)
	_, err := svc.Reverse(context.Background(), geo.Coordinate{Lat: 91})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestResolvedAddress_Label(t *testing.T) {
	var missing *ResolvedAddress
	assert.Equal(t, "", missing.Label())

	assert.Equal(t, "Tehran Valiasr St", (&ResolvedAddress{
		Address: Address{City: "Tehran", Road: "Valiasr St"},
	}).Label())

	assert.Equal(t, "Somewhere", (&ResolvedAddress{DisplayName: "Somewhere"}).Label())
}
