package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"krill/ipc"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List every service and its current state",
	Args:  cobra.NoArgs,
	RunE:  runPs,
}

func runPs(cmd *cobra.Command, args []string) error {
	c, err := ipc.Dial(controlSocket)
	if err != nil {
		return fail(3, fmt.Errorf("daemon unreachable: %w", err))
	}
	defer c.Close()

	services, err := c.GetSnapshot()
	if err != nil {
		return fail(3, fmt.Errorf("daemon unreachable: %w", err))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tSTATE\tPID\tRESTARTS\tLAST_ERROR")
	for _, s := range services {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", s.Service, s.State, s.PID, s.RestartCount, s.LastError)
	}
	return w.Flush()
}
