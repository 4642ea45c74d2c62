package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
)

func TestParse_SingleDevice(t *testing.T) {
	text := "govee_h5075_temperature{name=\"Lounge\"} 21.5\ngovee_h5075_humidity{name=\"Lounge\"} 55.0"

	readings := Parse(text, Labels{})

	require.Len(t, readings, 1)
	r := readings[0]
	assert.Equal(t, "Lounge", r.Name)
	assert.Equal(t, "Lounge", r.DisplayName)
	assert.Equal(t, model.DefaultGroup, r.Group)
	require.NotNil(t, r.Temperature)
	require.NotNil(t, r.Humidity)
	assert.Equal(t, 21.5, *r.Temperature)
	assert.Equal(t, 55.0, *r.Humidity)
	assert.Nil(t, r.Battery)
	assert.Equal(t, model.StatusActive, r.Status)
}

func TestParse_IgnoresCommentsAndGarbage(t *testing.T) {
	text := `# HELP govee_h5075_temperature Temperature
# TYPE govee_h5075_temperature gauge
govee_h5075_temperature{name="Lounge"} 21.5
this is not a metric
govee_h5075_temperature{name="Broken" 12
go_goroutines 12
govee_h5075_pressure{name="Lounge"} 1013
govee_h5075_battery{name="Lounge"} 87
`
	readings := Parse(text, Labels{})

	require.Len(t, readings, 1)
	assert.Equal(t, 87.0, *readings[0].Battery)
}

func TestParse_StatusAssertions(t *testing.T) {
	text := `govee_device_status{name="Attic",status="active"} 1
govee_device_status{name="Attic",status="stale"} 0
govee_device_status{name="Cellar",status="stale"} 1
govee_device_status{name="Cellar",status="never_seen"} 1
govee_device_status{name="Garage",status="exploded"} 1
govee_h5075_temperature{name="Attic"} 30.2
`
	readings := Parse(text, Labels{})

	require.Len(t, readings, 2)
	assert.Equal(t, "Attic", readings[0].Name)
	assert.Equal(t, model.StatusActive, readings[0].Status)

	assert.Equal(t, "Cellar", readings[1].Name)
	assert.Equal(t, model.StatusNeverSeen, readings[1].Status, "last asserted status wins")
	assert.False(t, readings[1].HasMetrics())
}

func TestParse_WeatherStation(t *testing.T) {
	text := `openmeteo_temperature 12.3
openmeteo_humidity 81
openmeteo_wind_speed 4.2
`
	readings := Parse(text, Labels{DisplayNames: map[string]string{"Outdoor": "Outside"}})

	require.Len(t, readings, 1)
	r := readings[0]
	assert.Equal(t, model.WeatherStationName, r.Name)
	assert.Equal(t, "Outside", r.DisplayName)
	assert.Equal(t, model.WeatherGroup, r.Group)
	assert.True(t, r.IsWeatherStation)
	assert.Nil(t, r.Battery)
	assert.Equal(t, 12.3, *r.Temperature)
}

func TestParse_WeatherWithoutTemperatureOrHumidity(t *testing.T) {
	readings := Parse("openmeteo_wind_speed 4.2\n", Labels{})
	assert.Empty(t, readings)
}

func TestParse_AppliesLabels(t *testing.T) {
	text := `govee_h5075_temperature{name="GVH5075_1234"} 19
govee_h5075_temperature{name="GVH5075_9999"} 20
`
	labels := Labels{
		Groups:       map[string]string{"GVH5075_1234": "Upstairs"},
		DisplayNames: map[string]string{"GVH5075_1234": "Bedroom"},
	}

	readings := Parse(text, labels)

	require.Len(t, readings, 2)
	assert.Equal(t, "Bedroom", readings[0].DisplayName)
	assert.Equal(t, "Upstairs", readings[0].Group)
	assert.Equal(t, "GVH5075_9999", readings[1].DisplayName)
	assert.Equal(t, model.DefaultGroup, readings[1].Group)
}

func TestParse_DropsNonFiniteValues(t *testing.T) {
	text := `govee_h5075_temperature{name="Lounge"} NaN
govee_h5075_humidity{name="Lounge"} +Inf
govee_h5075_battery{name="Lounge"} 80
govee_h5075_temperature{name="Attic"} -Inf
govee_device_status{name="Attic",status="stale"} NaN
govee_device_status{name="Cellar",status="stale"} +Inf
openmeteo_temperature NaN
openmeteo_humidity -Inf
`
	readings := Parse(text, Labels{})

	require.Len(t, readings, 1)
	r := readings[0]
	assert.Equal(t, "Lounge", r.Name)
	assert.Nil(t, r.Temperature)
	assert.Nil(t, r.Humidity)
	require.NotNil(t, r.Battery)
	assert.Equal(t, 80.0, *r.Battery)
	assert.Equal(t, model.StatusActive, r.Status)
}
