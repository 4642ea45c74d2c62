package main

import (
	"flag"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sensor-dashboard/internal/logging"
	"github.com/thatsimonsguy/sensor-dashboard/internal/mockexporter"
	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
)

type device struct {
	name     string
	baseTemp float64
	humidity float64
	battery  float64
}

func main() {
	addr := flag.String("addr", ":9101", "Listen address")
	interval := flag.Duration("interval", 10*time.Second, "How often readings drift")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logging.Init(logging.ParseLevel(*logLevel), "console", "")

	devices := []device{
		{name: "living_room", baseTemp: 21, humidity: 45, battery: 90},
		{name: "bedroom", baseTemp: 19, humidity: 50, battery: 64},
		{name: "attic", baseTemp: 26, humidity: 38, battery: 4},
		{name: "basement", baseTemp: 14, humidity: 72, battery: 80},
	}

	exp := mockexporter.New()
	step := 0
	update := func() {
		for i, d := range devices {
			drift := math.Sin(float64(step+i)/6) + rand.Float64()*0.4 - 0.2
			exp.SetSensor(d.name, model.Float(d.baseTemp+drift), model.Float(d.humidity+drift*2), model.Float(d.battery))
			exp.SetStatus(d.name, model.StatusActive)
		}
		// the basement sensor drops out every few cycles
		if step%5 == 4 {
			exp.SetSensor("basement", nil, nil, nil)
			exp.SetStatus("basement", model.StatusStale)
		}
		exp.SetStatus("garage", model.StatusNeverSeen)
		exp.SetWeather(8+math.Sin(float64(step)/10)*3, 80)
		step++
	}
	update()

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for range ticker.C {
			update()
			log.Debug().Int("step", step).Msg("Mock readings updated")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", exp.Handler())

	log.Info().Str("address", *addr).Msg("Serving mock sensor metrics")
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("Mock exporter stopped")
	}
}
