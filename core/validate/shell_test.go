package validate

import "testing"

func TestShellCommandAllows(t *testing.T) {
	if err := ShellCommand("python script.py --x"); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestShellCommandRejects(t *testing.T) {
	cases := []struct {
		command string
		pattern string
	}{
		{"cmd1 | cmd2", "|"},
		{"cmd1 ; cmd2", ";"},
		{"cmd1 && cmd2", "&&"},
		{"cmd1 || cmd2", "||"},
		{"echo $(whoami)", "$("},
		{"echo `whoami`", "`"},
		{"cmd1 > out.txt", ">"},
		{"cmd1 < in.txt", "<"},
		{"cmd1 &", "&"},
	}
	for _, c := range cases {
		err := ShellCommand(c.command)
		if err == nil {
			t.Fatalf("%q: expected rejection", c.command)
		}
		serr, ok := err.(*ShellCommandError)
		if !ok || serr.Pattern != c.pattern {
			t.Fatalf("%q: expected pattern %q, got %v", c.command, c.pattern, err)
		}
	}
}
