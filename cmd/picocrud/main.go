// picocrud - nested child collection service
// Serves parent resources and their child collections over REST, gRPC,
// WebSocket and a Redis command channel.
package main

import (
	"fmt"
	"os"

	"github.com/sipeed/picocrud/pkg/cli"
	"github.com/sipeed/picocrud/pkg/logger"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
