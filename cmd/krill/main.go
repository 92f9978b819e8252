// Command krill is the CLI client for a running krilld daemon: it brings a
// recipe up, asks the daemon to tear a workspace down, and inspects or
// nudges individual services over the local control socket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"krill/core/version"
)

var controlSocket string

// exitError carries one of the CLI's documented exit codes alongside the
// underlying error, so main can translate it without every command calling
// os.Exit itself.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func fail(code int, err error) error { return &exitError{code: code, err: err} }

var rootCmd = &cobra.Command{
	Use:     "krill",
	Short:   "Start, inspect, and tear down a Krill workspace",
	Version: version.Daemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&controlSocket, "control-socket", "/tmp/krill.sock", "unix socket path for the daemon's control plane")
	rootCmd.AddCommand(upCmd, downCmd, psCmd, logsCmd, restartCmd, stopCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if ee, ok := err.(*exitError); ok {
			fmt.Fprintln(os.Stderr, "krill:", ee.err)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "krill:", err)
		os.Exit(1)
	}
}
