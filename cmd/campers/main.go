// Command campers provisions, configures, and tears down short-lived cloud
// compute instances for remote development.
package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/campers-dev/campers/internal/cli"
	"github.com/campers-dev/campers/internal/logging"
)

var version = "dev"

func main() {
	logger := logging.New(logging.Options{
		ForceJSON:  hasArg("--json-output"),
		ForcePlain: hasArg("--plain"),
		Debug:      os.Getenv("CAMPERS_DEBUG") == "1",
	})
	defer logger.Sync() //nolint:errcheck

	app := cli.NewApp(version)
	if err := app.Run(os.Args); err != nil {
		logger.Error("campers exited with error", zap.Error(err))
		os.Exit(exitCodeFromError(err))
	}
}

func hasArg(name string) bool {
	for _, a := range os.Args[1:] {
		if a == name {
			return true
		}
	}
	return false
}

// exitCodeFromError maps an error returned from urfave/cli/v2's app.Run
// back to a process exit code: *cli.exitError (from cli.Exit) carries its
// own code; anything else is an unhandled runtime error per spec.md §6.
func exitCodeFromError(err error) int {
	if coder, ok := err.(interface{ ExitCode() int }); ok {
		return coder.ExitCode()
	}
	return 1
}
