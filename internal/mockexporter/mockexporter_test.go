package mockexporter

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
	"github.com/thatsimonsguy/sensor-dashboard/internal/parser"
	"github.com/thatsimonsguy/sensor-dashboard/internal/poller"
)

func fetch(t *testing.T, e *Exporter) []model.Reading {
	t.Helper()
	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	text, err := poller.NewHTTPFetcher(srv.URL, time.Second).Fetch(context.Background())
	require.NoError(t, err)
	return parser.Parse(text, parser.Labels{Groups: map[string]string{"lounge": "Downstairs"}})
}

func TestExporter_RoundTripsThroughParser(t *testing.T) {
	e := New()
	e.SetSensor("lounge", model.Float(21.5), model.Float(44), model.Float(80))
	e.SetStatus("lounge", model.StatusActive)
	e.SetStatus("attic", model.StatusStale)
	e.SetWeather(4.2, 88)

	readings := fetch(t, e)
	require.Len(t, readings, 3)

	byName := make(map[string]model.Reading)
	for _, r := range readings {
		byName[r.Name] = r
	}

	lounge := byName["lounge"]
	assert.Equal(t, "Downstairs", lounge.Group)
	require.NotNil(t, lounge.Temperature)
	assert.InDelta(t, 21.5, *lounge.Temperature, 0.001)
	assert.Equal(t, model.StatusActive, lounge.Status)

	assert.Equal(t, model.StatusStale, byName["attic"].Status)
	assert.False(t, byName["attic"].HasMetrics())

	weather := byName[model.WeatherStationName]
	assert.True(t, weather.IsWeatherStation)
	require.NotNil(t, weather.Humidity)
	assert.InDelta(t, 88, *weather.Humidity, 0.001)
}

func TestExporter_WithdrawnSeries(t *testing.T) {
	e := New()
	e.SetSensor("lounge", model.Float(21.5), model.Float(44), nil)
	e.SetSensor("attic", model.Float(18), nil, nil)
	e.RemoveDevice("attic")

	readings := fetch(t, e)
	require.Len(t, readings, 1)
	assert.Equal(t, "lounge", readings[0].Name)
	assert.Nil(t, readings[0].Battery)
}
