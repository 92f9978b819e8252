// Command krilld is the Krill daemon: it loads a recipe, builds the
// dependency graph, brings services up in layer order, and serves the
// local control socket until told to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"krill/ipc"
	"krill/core/orchestrator"
	"krill/core/recipe"
	"krill/core/session"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "up" {
		usage()
		os.Exit(2)
	}

	flags := flag.NewFlagSet("up", flag.ExitOnError)
	controlSocket := flags.String("control-socket", "/tmp/krill.sock", "unix socket path for the control plane")
	logDir := flags.String("log-dir", "", "directory for session logs and timeline (overrides recipe log_dir)")
	ringCap := flags.Int("log-tail-lines", 200, "number of log lines retained in memory per service")
	if err := flags.Parse(os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "krilld:", err)
		os.Exit(2)
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "krilld: recipe path required")
		usage()
		os.Exit(2)
	}
	recipePath := flags.Arg(0)

	rec, warnings, err := recipe.LoadFile(recipePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "krilld:", err)
		os.Exit(2)
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "krilld: warning:", w.String())
	}

	dir := rec.LogDir
	if *logDir != "" {
		dir = *logDir
	}
	sess, err := session.New(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "krilld:", err)
		os.Exit(1)
	}

	orch, err := orchestrator.New(rec, sess, *ringCap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "krilld:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// daemonCtx is canceled both by the signal context above and, once
	// orch.Run returns on its own (a stop_daemon command over IPC), by the
	// explicit cancelDaemon call below — either way the control socket
	// shuts down with it instead of outliving the orchestrator.
	daemonCtx, cancelDaemon := context.WithCancel(ctx)
	defer cancelDaemon()

	srv := ipc.New(*controlSocket, orch)
	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Run(daemonCtx) }()

	runErr := orch.Run(daemonCtx)
	cancelDaemon()
	<-srvDone

	if runErr != nil && runErr != context.Canceled {
		fmt.Fprintln(os.Stderr, "krilld:", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: krilld up [--control-socket path] [--log-dir dir] [--log-tail-lines n] <recipe.yaml>")
}
