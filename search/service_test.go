// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jcodagnone/mediquery/apperr"
	"github.com/jcodagnone/mediquery/geocode"
	"github.com/jcodagnone/mediquery/metrics"
	"github.com/jcodagnone/mediquery/overpass"
	"github.com/jcodagnone/mediquery/spatial"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGeocoder struct {
	mock.Mock
}

func (m *MockGeocoder) Name() string { return "mock" }

func (m *MockGeocoder) Geocode(ctx context.Context, location string) (*geocode.Result, error) {
	args := m.Called(ctx, location)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*geocode.Result), args.Error(1)
}

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchCandidates(ctx context.Context, origin spatial.Point, radiusKm float64) ([]overpass.Element, error) {
	args := m.Called(ctx, origin, radiusKm)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]overpass.Element), args.Error(1)
}

var connaught = &geocode.Result{
	Point:       spatial.Point{Lat: 28.6315, Lon: 77.2167},
	DisplayName: "Connaught Place, New Delhi, Delhi, India",
	Provider:    "mock",
}

func ptr[T any](v T) *T { return &v }

func el(id int64, lat, lon float64, tags map[string]string) overpass.Element {
	return overpass.Element{ID: id, Type: "node", Lat: &lat, Lon: &lon, Tags: tags}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(g geocode.Geocoder, f CandidateFetcher) *Service {
	return NewService(g, f, DefaultOptions(), quietLogger(), nil)
}

func TestClampRadius(t *testing.T) {
	opts := DefaultOptions()

	tests := []struct {
		name   string
		radius *float64
		want   float64
	}{
		{"absent", nil, 5},
		{"zero", ptr(0.0), 1},
		{"negative", ptr(-3.0), 1},
		{"below min", ptr(0.4), 1},
		{"in range", ptr(7.5), 7.5},
		{"max", ptr(25.0), 25},
		{"above max", ptr(100.0), 25},
		{"nan", ptr(math.NaN()), 5},
		{"inf", ptr(math.Inf(1)), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, opts.ClampRadius(tt.radius), 1e-12)
		})
	}
}

func TestClampRadiusCustomOptions(t *testing.T) {
	opts := Options{DefaultRadiusKm: 3, MaxRadiusKm: 10}

	assert.InDelta(t, 3.0, opts.ClampRadius(nil), 1e-12)
	assert.InDelta(t, 10.0, opts.ClampRadius(ptr(20.0)), 1e-12)
	assert.InDelta(t, 5.0, Options{}.ClampRadius(nil), 1e-12)
}

func TestSearch(t *testing.T) {
	g := &MockGeocoder{}
	f := &MockFetcher{}

	g.On("Geocode", mock.Anything, "Connaught Place, Delhi").Return(connaught, nil)
	f.On("FetchCandidates", mock.Anything, connaught.Point, 3.0).Return([]overpass.Element{
		el(1, 28.6400, 77.2167, map[string]string{"amenity": "pharmacy", "name": "Far Pharmacy"}),
		el(2, 28.6320, 77.2170, map[string]string{"amenity": "pharmacy", "name": "Apollo Pharmacy"}),
		el(3, 28.6320, 77.2170, map[string]string{"shop": "pharmacy", "name": "Apollo Pharmacy"}),
		el(4, 28.7500, 77.2167, map[string]string{"amenity": "clinic", "name": "Out of range"}),
		{ID: 5, Type: "way", Tags: map[string]string{"name": "No coordinates"}},
	}, nil)

	res, err := newTestService(g, f).Search(context.Background(), "  Connaught Place, Delhi ", ptr(3.0))
	require.NoError(t, err)

	require.Len(t, res.Stores, 2)
	assert.Equal(t, "Apollo Pharmacy", res.Stores[0].Name)
	assert.Equal(t, int64(2), res.Stores[0].ID, "first duplicate wins")
	assert.Equal(t, "Far Pharmacy", res.Stores[1].Name)

	assert.Equal(t, connaught.DisplayName, res.Location.Name)
	assert.Equal(t, connaught.Point, res.Location.Coordinates)
	assert.Equal(t, Params{Radius: 3, Total: 2}, res.SearchParams)
	assert.Nil(t, res.Message)

	g.AssertExpectations(t)
	f.AssertExpectations(t)
}

func TestSearchNoResults(t *testing.T) {
	g := &MockGeocoder{}
	f := &MockFetcher{}

	g.On("Geocode", mock.Anything, "Leh").Return(connaught, nil)
	f.On("FetchCandidates", mock.Anything, connaught.Point, 5.0).Return([]overpass.Element{}, nil)

	res, err := newTestService(g, f).Search(context.Background(), "Leh", nil)
	require.NoError(t, err)

	assert.NotNil(t, res.Stores)
	assert.Empty(t, res.Stores)
	assert.Equal(t, 0, res.SearchParams.Total)
	require.NotNil(t, res.Message)
	assert.Equal(t, MessageNoResults, res.Message.Type)
	assert.Equal(t,
		"No medical stores found in our database for 5km around Leh. This area might not be fully mapped yet.",
		res.Message.Text)
	assert.Len(t, res.Message.Suggestions, 3)
}

func TestSearchMetrics(t *testing.T) {
	g := &MockGeocoder{}
	f := &MockFetcher{}

	g.On("Geocode", mock.Anything, "Leh").Return(connaught, nil)
	g.On("Geocode", mock.Anything, "Delhi").Return(connaught, nil)
	f.On("FetchCandidates", mock.Anything, connaught.Point, 5.0).Return([]overpass.Element{}, nil).Once()
	f.On("FetchCandidates", mock.Anything, connaught.Point, 5.0).Return([]overpass.Element{
		el(1, 28.6320, 77.2170, map[string]string{"amenity": "pharmacy", "name": "Apollo Pharmacy"}),
	}, nil).Once()

	reg := prometheus.NewRegistry()
	svc := NewService(g, f, DefaultOptions(), quietLogger(), metrics.New(reg))

	_, err := svc.Search(context.Background(), "Leh", nil)
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), "Delhi", nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	outcomes := map[string]float64{}
	var storesSamples uint64

	for _, family := range families {
		switch family.GetName() {
		case "mediquery_searches_total":
			for _, m := range family.GetMetric() {
				outcomes[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
			}
		case "mediquery_stores_returned":
			storesSamples = family.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}

	assert.Equal(t, map[string]float64{metrics.OutcomeEmpty: 1, metrics.OutcomeOK: 1}, outcomes)
	assert.Equal(t, uint64(2), storesSamples, "empty searches are observed in the stores histogram")
}

func TestSearchClampsRadiusBeforeFetching(t *testing.T) {
	g := &MockGeocoder{}
	f := &MockFetcher{}

	g.On("Geocode", mock.Anything, "Delhi").Return(connaught, nil)
	f.On("FetchCandidates", mock.Anything, connaught.Point, 25.0).Return([]overpass.Element{}, nil)

	res, err := newTestService(g, f).Search(context.Background(), "Delhi", ptr(100.0))
	require.NoError(t, err)
	assert.InDelta(t, 25.0, res.SearchParams.Radius, 1e-12)
	f.AssertExpectations(t)
}

func TestSearchErrors(t *testing.T) {
	geocodeErr := apperr.New(apperr.KindNotFound, `Location "Atlantis" not found.`)
	timeoutErr := apperr.New(apperr.KindRequestTimeout, "All map servers are responding slowly.")

	tests := []struct {
		name       string
		location   string
		setup      func(g *MockGeocoder, f *MockFetcher)
		want       apperr.Kind
		message    string
		noFetching bool
		located    bool
	}{
		{
			name:       "blank location",
			location:   "   ",
			setup:      func(_ *MockGeocoder, _ *MockFetcher) {},
			want:       apperr.KindInvalidInput,
			noFetching: true,
		},
		{
			name:     "geocoder not found",
			location: "Atlantis",
			setup: func(g *MockGeocoder, _ *MockFetcher) {
				g.On("Geocode", mock.Anything, "Atlantis").Return(nil, geocodeErr)
			},
			want:       apperr.KindNotFound,
			message:    geocodeErr.Message,
			noFetching: true,
		},
		{
			name:     "mirrors time out",
			location: "Delhi",
			setup: func(g *MockGeocoder, f *MockFetcher) {
				g.On("Geocode", mock.Anything, "Delhi").Return(connaught, nil)
				f.On("FetchCandidates", mock.Anything, connaught.Point, 5.0).Return(nil, timeoutErr)
			},
			want:    apperr.KindRequestTimeout,
			located: true,
		},
		{
			name:     "untyped error is internal",
			location: "Delhi",
			setup: func(g *MockGeocoder, f *MockFetcher) {
				g.On("Geocode", mock.Anything, "Delhi").Return(connaught, nil)
				f.On("FetchCandidates", mock.Anything, connaught.Point, 5.0).Return(nil, errors.New("boom"))
			},
			want:    apperr.KindInternal,
			message: "Failed to process store search request",
			located: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &MockGeocoder{}
			f := &MockFetcher{}
			tt.setup(g, f)

			res, err := newTestService(g, f).Search(context.Background(), tt.location, nil)
			require.Error(t, err)
			assert.Nil(t, res)

			appErr, ok := apperr.As(err)
			require.True(t, ok, "expected an *apperr.Error, got %T", err)
			assert.Equal(t, tt.want, appErr.Kind)

			origin, located := OriginOf(err)
			assert.Equal(t, tt.located, located)

			if tt.located {
				assert.Equal(t, connaught.Point, origin)
			}

			if tt.message != "" {
				assert.Equal(t, tt.message, appErr.Message)
			}

			if tt.noFetching {
				f.AssertNotCalled(t, "FetchCandidates", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

// TestSearchEndToEnd wires the real geocoder and mirror client against stub upstreams.
func TestSearchEndToEnd(t *testing.T) {
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Connaught Place, Delhi", r.URL.Query().Get("q"))
		fmt.Fprint(w, `[{"lat":"28.6314512","lon":"77.2166672","display_name":"Connaught Place, New Delhi, Delhi, 110001, India"}]`)
	}))
	defer nominatim.Close()

	emptyMirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"elements":[]}`)
	}))
	defer emptyMirror.Close()

	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"elements":[
			{"type":"node","id":10,"lat":28.6450,"lon":77.2200,"tags":{"amenity":"pharmacy","name":"Karol Chemists"}},
			{"type":"node","id":11,"lat":28.6320,"lon":77.2170,"tags":{"amenity":"pharmacy","name":"Apollo Pharmacy","phone":"+91 11 4000 0000"}},
			{"type":"node","id":12,"lat":28.6320,"lon":77.2170,"tags":{"shop":"chemist","name":"Apollo Pharmacy"}},
			{"type":"way","id":13,"center":{"lat":28.6250,"lon":77.2100},"tags":{"shop":"medical"}},
			{"type":"node","id":14,"lat":28.7041,"lon":77.1025,"tags":{"amenity":"clinic","name":"Far Clinic"}},
			{"type":"relation","id":15,"tags":{"amenity":"pharmacy"}}
		]}`)
	}))
	defer mirror.Close()

	g := geocode.NewNominatimGeocoder(geocode.NominatimOptions{BaseURL: nominatim.URL, Logger: quietLogger()})
	f := overpass.NewClient(overpass.Options{
		Endpoints: []string{emptyMirror.URL, mirror.URL},
		Logger:    quietLogger(),
	})

	res, err := NewService(g, f, DefaultOptions(), quietLogger(), nil).
		Search(context.Background(), "Connaught Place, Delhi", ptr(3.0))
	require.NoError(t, err)

	assert.InDelta(t, 28.63, res.Location.Coordinates.Lat, 0.01)
	assert.InDelta(t, 77.22, res.Location.Coordinates.Lon, 0.01)

	require.Len(t, res.Stores, 3)
	assert.Equal(t, 3, res.SearchParams.Total)

	for i, st := range res.Stores {
		assert.LessOrEqual(t, st.Distance, 3.0)

		if i > 0 {
			assert.LessOrEqual(t, res.Stores[i-1].Distance, st.Distance)
		}
	}

	assert.Equal(t, "Apollo Pharmacy", res.Stores[0].Name)
	assert.Equal(t, "+91 11 4000 0000", res.Stores[0].Phone)
	assert.Equal(t, "Medical Store", res.Stores[1].Name)
	assert.Equal(t, "Karol Chemists", res.Stores[2].Name)
}
