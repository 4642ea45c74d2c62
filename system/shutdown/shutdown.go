package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"
)

// Step releases one resource on the way out.
type Step struct {
	Name  string
	Close func() error
}

// Shutdown runs steps in reverse order. Failures are logged and do not stop
// the remaining steps.
func Shutdown(steps ...Step) {
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if err := s.Close(); err != nil {
			log.Error().Err(err).Str("step", s.Name).Msg("Shutdown step failed")
			continue
		}
		log.Info().Str("step", s.Name).Msg("Released")
	}
}

func ShutdownWithError(err error, msg string, steps ...Step) {
	log.Error().Err(err).Msg(msg)
	Shutdown(steps...)
	os.Exit(1)
}
