package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"krill/ipc"
)

var logsCmd = &cobra.Command{
	Use:   "logs <service>",
	Short: "Print a service's recent stdout/stderr lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

func runLogs(cmd *cobra.Command, args []string) error {
	service := args[0]

	c, err := ipc.Dial(controlSocket)
	if err != nil {
		return fail(3, fmt.Errorf("daemon unreachable: %w", err))
	}
	defer c.Close()

	err = c.TailLog(service, func(l ipc.LogLineFrame) {
		fmt.Printf("%s | %s\n", l.Stream, l.Text)
	})
	if err != nil {
		return fail(1, err)
	}
	return nil
}
