// Entry point for the offline kiosk agent
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"punchclock.service/internal/agentcli"
)

func main() {
	if err := agentcli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, agentcli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			agentcli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal().Err(err).Msg("punch-agent failed")
	}
}
