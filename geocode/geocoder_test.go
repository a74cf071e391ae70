// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jcodagnone/mediquery/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanLocation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"trimmed", "  Connaught Place  ", "Connaught Place", false},
		{"empty", "", "", true},
		{"whitespace", " \t\n ", "", true},
		{"too short", " a ", "", true},
		{"two characters", "Ab", "Ab", false},
		{"multibyte counts runes", "नई", "नई", false},
		{"max length", strings.Repeat("x", 100), strings.Repeat("x", 100), false},
		{"too long", strings.Repeat("x", 101), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanLocation(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newNominatim(t *testing.T, handler http.HandlerFunc) *NominatimGeocoder {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewNominatimGeocoder(NominatimOptions{
		BaseURL:   srv.URL,
		UserAgent: "MediQuery/test (Medical Store Finder)",
		Timeout:   200 * time.Millisecond,
	})
}

func TestNominatimGeocode(t *testing.T) {
	var gotQuery, gotUA string

	g := newNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")

		assert.Equal(t, "/search", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"lat":"28.6314","lon":"77.2167","display_name":"Connaught Place, New Delhi, Delhi, India"}]`)
	})

	res, err := g.Geocode(context.Background(), "  Connaught Place, Delhi ")
	require.NoError(t, err)

	assert.InDelta(t, 28.6314, res.Point.Lat, 1e-9)
	assert.InDelta(t, 77.2167, res.Point.Lon, 1e-9)
	assert.Equal(t, "Connaught Place, New Delhi, Delhi, India", res.DisplayName)
	assert.Equal(t, "nominatim", res.Provider)

	assert.Contains(t, gotQuery, "format=json")
	assert.Contains(t, gotQuery, "limit=1")
	assert.Contains(t, gotQuery, "addressdetails=1")
	assert.Contains(t, gotQuery, "q=Connaught+Place%2C+Delhi")
	assert.Equal(t, "MediQuery/test (Medical Store Finder)", gotUA)
}

func TestNominatimGeocodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    apperr.Kind
		message string
	}{
		{
			name: "no matches",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `[]`)
			},
			want:    apperr.KindNotFound,
			message: `Location "Atlantis" not found`,
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			want:    apperr.KindRateLimited,
			message: "Too many location requests",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want:    apperr.KindServiceUnavailable,
			message: "Unable to verify location",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `<html>`)
			},
			want: apperr.KindInternal,
		},
		{
			name: "missing coordinates",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `[{"display_name":"Somewhere"}]`)
			},
			want:    apperr.KindInternal,
			message: "Invalid location coordinates received",
		},
		{
			name: "unparsable coordinates",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, `[{"lat":"north","lon":"77.2"}]`)
			},
			want:    apperr.KindInternal,
			message: "Invalid location coordinates received",
		},
		{
			name: "slow provider",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			want:    apperr.KindRequestTimeout,
			message: "Location search timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newNominatim(t, tt.handler)

			_, err := g.Geocode(context.Background(), "Atlantis")
			require.Error(t, err)

			appErr, ok := apperr.As(err)
			require.True(t, ok, "expected *apperr.Error, got %T", err)
			assert.Equal(t, tt.want, appErr.Kind)

			if tt.message != "" {
				assert.Contains(t, appErr.Message, tt.message)
			}
		})
	}
}

func TestNominatimGeocodeEmptyInputSkipsUpstream(t *testing.T) {
	called := false

	g := newNominatim(t, func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	})

	_, err := g.Geocode(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
	assert.False(t, called)
}

func TestNominatimGeocodeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := NewNominatimGeocoder(NominatimOptions{BaseURL: url})

	_, err := g.Geocode(context.Background(), "Delhi")
	require.Error(t, err)
	assert.Equal(t, apperr.KindServiceUnavailable, apperr.KindOf(err))
}

func TestGoogleMapsGeocode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    apperr.Kind
		wantErr bool
	}{
		{
			name: "ok",
			body: `{"status":"OK","results":[{"formatted_address":"Connaught Place, New Delhi","geometry":{"location":{"lat":28.6315,"lng":77.2167},"location_type":"APPROXIMATE"}}]}`,
		},
		{name: "zero results", body: `{"status":"ZERO_RESULTS","results":[]}`, want: apperr.KindNotFound, wantErr: true},
		{name: "over limit", body: `{"status":"OVER_QUERY_LIMIT"}`, want: apperr.KindRateLimited, wantErr: true},
		{name: "denied", body: `{"status":"REQUEST_DENIED","error_message":"bad key"}`, want: apperr.KindServiceUnavailable, wantErr: true},
		{name: "invalid request", body: `{"status":"INVALID_REQUEST"}`, want: apperr.KindInvalidInput, wantErr: true},
		{
			name:    "missing location",
			body:    `{"status":"OK","results":[{"formatted_address":"x","geometry":{}}]}`,
			want:    apperr.KindInternal,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "test-key", r.URL.Query().Get("key"))
				assert.Equal(t, "Connaught Place", r.URL.Query().Get("address"))
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			g := NewGoogleMapsGeocoder(GoogleMapsOptions{APIKey: "test-key", Endpoint: srv.URL})

			res, err := g.Geocode(context.Background(), "Connaught Place")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.want, apperr.KindOf(err))

				return
			}

			require.NoError(t, err)
			assert.InDelta(t, 28.6315, res.Point.Lat, 1e-9)
			assert.Equal(t, "google_maps", res.Provider)
		})
	}
}

func TestGoogleMapsGeocodeWithoutKey(t *testing.T) {
	g := NewGoogleMapsGeocoder(GoogleMapsOptions{})

	_, err := g.Geocode(context.Background(), "Delhi")
	require.Error(t, err)
	assert.Equal(t, apperr.KindServiceUnavailable, apperr.KindOf(err))
}

func TestResolveGoogleAPIKeyPrefersExplicit(t *testing.T) {
	key, err := ResolveGoogleAPIKey(context.Background(), "explicit", KeyLookup{})
	require.NoError(t, err)
	assert.Equal(t, "explicit", key)
}

type fakeKeys struct {
	names   map[string]string
	secrets map[string]string
	listErr error
	project string
}

func (f *fakeKeys) Names(_ context.Context, project string) (map[string]string, error) {
	f.project = project

	return f.names, f.listErr
}

func (f *fakeKeys) Secret(_ context.Context, name string) (string, error) {
	secret, ok := f.secrets[name]
	if !ok {
		return "", fmt.Errorf("no key %s", name)
	}

	return secret, nil
}

func TestLookupKey(t *testing.T) {
	keys := &fakeKeys{
		names: map[string]string{
			DefaultKeyName:    "projects/p/locations/global/keys/default",
			"Staging Maps Key": "projects/p/locations/global/keys/staging",
			"Revoked Key":      "projects/p/locations/global/keys/revoked",
		},
		secrets: map[string]string{
			"projects/p/locations/global/keys/default": "AIza-default",
			"projects/p/locations/global/keys/staging": "AIza-staging",
			"projects/p/locations/global/keys/revoked": "",
		},
	}

	tests := []struct {
		name        string
		displayName string
		want        string
		wantErr     string
	}{
		{"default name", DefaultKeyName, "AIza-default", ""},
		{"configured name", "Staging Maps Key", "AIza-staging", ""},
		{"unknown name", "Prod Maps Key", "", `"Prod Maps Key" not found in project mediquery-dev`},
		{"empty secret", "Revoked Key", "", "empty key string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lookupKey(context.Background(), keys, "mediquery-dev", tt.displayName)
			assert.Equal(t, "mediquery-dev", keys.project)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupKeyListFailure(t *testing.T) {
	keys := &fakeKeys{listErr: fmt.Errorf("listing keys: permission denied")}

	_, err := lookupKey(context.Background(), keys, "mediquery-dev", DefaultKeyName)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
