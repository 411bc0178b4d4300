package commands

import (
	"bytes"
	"context"
	"regexp"
	"testing"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// isolate points the XDG lookup at an empty directory so a developer's own
// config file never leaks into the tests
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

// execute runs cmd with args, disables pterm color and strips ANSI codes
// from the captured output
func execute(t *testing.T, ctx context.Context, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	oldPrintColor := pterm.PrintColor
	pterm.PrintColor = false
	t.Cleanup(func() { pterm.PrintColor = oldPrintColor })

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return ansiRegex.ReplaceAllString(out.String(), ""), err
}
