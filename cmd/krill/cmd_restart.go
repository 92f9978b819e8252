package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"krill/ipc"
)

var restartCmd = &cobra.Command{
	Use:   "restart <service>",
	Short: "Stop and restart one service",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestart,
}

var stopCmd = &cobra.Command{
	Use:   "stop <service>",
	Short: "Stop one service",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

func runRestart(cmd *cobra.Command, args []string) error {
	return sendCommand("restart", args[0])
}

func runStop(cmd *cobra.Command, args []string) error {
	return sendCommand("stop", args[0])
}

func sendCommand(action, target string) error {
	c, err := ipc.Dial(controlSocket)
	if err != nil {
		return fail(3, fmt.Errorf("daemon unreachable: %w", err))
	}
	defer c.Close()

	ack, err := c.Command(action, target)
	if err != nil {
		return fail(3, fmt.Errorf("daemon unreachable: %w", err))
	}
	if !ack.OK {
		return fail(1, fmt.Errorf("%s", ack.Message))
	}
	return nil
}
