package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/citizen-docs/internal/common"
)

// usageError makes run exit with status 2.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error { return usageError{fmt.Sprintf(format, args...)} }

type command struct {
	summary string
	usage   string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, a *app, fs *pflag.FlagSet) error
}

var commands = map[string]command{
	"login":     loginCmd,
	"register":  registerCmd,
	"logout":    logoutCmd,
	"whoami":    whoamiCmd,
	"refresh":   refreshCmd,
	"scan":      scanCmd,
	"resubmit":  resubmitCmd,
	"history":   historyCmd,
	"export":    exportCmd,
	"citizens":  citizensCmd,
	"documents": documentsCmd,
	"users":     usersCmd,
	"passwd":    passwdCmd,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(errOut)
		return 2
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(errOut, "idscan: unknown command %q\n\n", name)
		printUsage(errOut)
		return 2
	}

	fs := pflag.NewFlagSet("idscan "+name, pflag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprintf(errOut, "usage: idscan %s %s\n\n%s\n\n", name, cmd.usage, cmd.summary)
		fs.PrintDefaults()
	}
	globalFlags(fs)
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(errOut, "idscan %s: %v\n", name, err)
		fs.Usage()
		return 2
	}

	a, err := newApp(fs, in, out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "idscan: %s\n", common.UserMessage(err))
		return 1
	}
	defer a.close()

	if err := cmd.run(ctx, a, fs); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(errOut, "idscan %s: %s\n", name, ue.msg)
			fs.Usage()
			return 2
		}
		a.logger.Debug("command failed", "command", name, "error", err)
		fmt.Fprintf(errOut, "idscan %s: %s\n", name, common.UserMessage(err))
		return 1
	}
	return 0
}

func globalFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("api-url", "", "backend base URL")
	fs.String("token", "", "token file")
	fs.String("dsn", "", "run store: sqlite path or postgres:// URL")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "text or json")
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: idscan <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %-10s %s\n", n, commands[n].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Every setting can also come from IDSCAN_* environment variables.")
}

// arg returns positional argument i or a usage error naming it.
func arg(fs *pflag.FlagSet, i int, name string) (string, error) {
	if fs.NArg() <= i || strings.TrimSpace(fs.Arg(i)) == "" {
		return "", usagef("missing <%s>", name)
	}
	return fs.Arg(i), nil
}
