package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"krill/core/events"
	"krill/ipc"
	"krill/core/orchestrator"
	"krill/core/recipe"
	"krill/core/session"
)

var detach bool

var upCmd = &cobra.Command{
	Use:   "up <recipe.yaml>",
	Short: "Bring a workspace's services up",
	Args:  cobra.ExactArgs(1),
	RunE:  runUp,
}

func init() {
	upCmd.Flags().BoolVarP(&detach, "detach", "d", false, "run the daemon in the background and return once it is up")
}

func runUp(cmd *cobra.Command, args []string) error {
	recipePath := args[0]

	rec, warnings, err := recipe.LoadFile(recipePath)
	if err != nil {
		return fail(2, err)
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "warning:", w.String())
	}

	if detach {
		return runDetached(recipePath)
	}
	return runForeground(rec)
}

// runForeground builds the orchestrator in this process and blocks until
// SIGINT/SIGTERM, printing every state transition as it happens.
func runForeground(rec *recipe.Recipe) error {
	sess, err := session.New(rec.LogDir)
	if err != nil {
		return fail(1, err)
	}

	orch, err := orchestrator.New(rec, sess, 200)
	if err != nil {
		return fail(2, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	daemonCtx, cancelDaemon := context.WithCancel(ctx)
	defer cancelDaemon()

	id, ch := orch.Bus().Subscribe()
	defer orch.Bus().Unsubscribe(id)
	go printEvents(ch)

	srv := ipc.New(controlSocket, orch)
	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Run(daemonCtx) }()

	runErr := orch.Run(daemonCtx)
	cancelDaemon()
	<-srvDone
	if runErr != nil {
		return fail(1, runErr)
	}
	return nil
}

func printEvents(ch <-chan events.Event) {
	for ev := range ch {
		if ev.Reason != "" {
			fmt.Printf("%s: %s -> %s (%s)\n", ev.Service, ev.From, ev.To, ev.Reason)
		} else {
			fmt.Printf("%s: %s -> %s\n", ev.Service, ev.From, ev.To)
		}
	}
}

// runDetached execs krilld in its own session, watches its stderr until it
// either fails fast or its control socket becomes dialable, then leaves it
// running and returns.
func runDetached(recipePath string) error {
	bin, err := krilldPath()
	if err != nil {
		return fail(1, err)
	}

	cmd := exec.Command(bin, "up", "--control-socket", controlSocket, recipePath)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fail(1, err)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fail(1, err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if ok {
				fmt.Fprintln(os.Stderr, line)
			}
		case err := <-exited:
			drainRemaining(lines)
			if err != nil {
				return fail(1, fmt.Errorf("daemon exited before starting: %w", err))
			}
			return fail(1, fmt.Errorf("daemon exited before starting"))
		case <-deadline:
			return fail(1, fmt.Errorf("timed out waiting for daemon to start"))
		default:
			if dialable(controlSocket) {
				return nil
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
}

func drainRemaining(lines <-chan string) {
	for line := range lines {
		fmt.Fprintln(os.Stderr, line)
	}
}

func dialable(path string) bool {
	c, err := ipc.Dial(path)
	if err != nil {
		return false
	}
	c.Close()
	return true
}

func krilldPath() (string, error) {
	if p, err := exec.LookPath("krilld"); err == nil {
		return p, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	candidate := self + "d"
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	return "", fmt.Errorf("krilld binary not found alongside krill or on PATH")
}
