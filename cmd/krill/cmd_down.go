package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"krill/ipc"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop every service and shut the daemon down",
	Args:  cobra.NoArgs,
	RunE:  runDown,
}

func runDown(cmd *cobra.Command, args []string) error {
	c, err := ipc.Dial(controlSocket)
	if err != nil {
		return fail(3, fmt.Errorf("daemon unreachable: %w", err))
	}
	defer c.Close()

	ack, err := c.Command("stop_daemon", "")
	if err != nil {
		return fail(3, fmt.Errorf("daemon unreachable: %w", err))
	}
	if !ack.OK {
		return fail(1, fmt.Errorf("%s", ack.Message))
	}
	return nil
}
