package main

import (
	"os"
	"os/signal"

	"github.com/cheerily/cheerily/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// main sets the log level from DEBUG_CHEERILY, exits on an interrupt signal,
// and runs the root command.
func main() {
	configureLogLevelFromEnv()

	stopChan := setupInterruptListener()
	go handleInterrupt(stopChan, func(msg string) {
		log.Error().Msg(msg)
	}, os.Exit)

	cmd.Execute()
}

// configureLogLevelFromEnv enables debug logging unless DEBUG_CHEERILY is
// empty, "false" or "0".
func configureLogLevelFromEnv() {
	switch os.Getenv("DEBUG_CHEERILY") {
	case "", "false", "0":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func setupInterruptListener() chan os.Signal {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt)
	return stopChan
}

// handleInterrupt waits for a signal on stopChan, then logs and exits with 1.
func handleInterrupt(stopChan chan os.Signal, fatalLog func(string), exit func(int)) {
	<-stopChan
	fatalLog("Interrupt signal received. Exiting...")
	exit(1)
}
