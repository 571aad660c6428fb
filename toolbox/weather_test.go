package toolbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeatherLookup(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte("Partly cloudy +21°C\n"))
	}))
	defer srv.Close()

	w := &Weather{BaseURL: srv.URL, HTTPClient: srv.Client()}
	got, err := w.Lookup(context.Background(), "New Delhi")
	require.NoError(t, err)

	assert.Equal(t, "The weather in New Delhi is Partly cloudy +21°C", got)
	assert.Equal(t, "/new%20delhi", gotPath)
	assert.Equal(t, "format=%C+%t", gotQuery)
}

func TestWeatherLookupNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown location", http.StatusNotFound)
	}))
	defer srv.Close()

	w := &Weather{BaseURL: srv.URL}
	got, err := w.Lookup(context.Background(), "atlantis")
	require.NoError(t, err)
	assert.Equal(t, "Something went wrong", got)
}

func TestWeatherLookupTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	w := &Weather{BaseURL: srv.URL}
	_, err := w.Lookup(context.Background(), "paris")
	assert.Error(t, err)
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(NewWeather(), &Shell{})
	assert.Equal(t, []string{"get_weather", "run_command"}, reg.Names())
}
