// Command drivesync mirrors a Drive folder tree into a local directory or an
// object storage bucket.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitInvalidArgs     = 2
	ExitSourceError     = 3
	ExitStorageError    = 5
	ExitTransfersFailed = 8
)

// CLI is the command line grammar. Global flags override the configuration
// file and the DRIVESYNC_ environment.
type CLI struct {
	Config      string `short:"c" type:"path" help:"YAML configuration file."`
	Credentials string `type:"path" help:"Service account key or OAuth client secret file."`
	Token       string `type:"path" help:"Saved OAuth token for a client secret."`
	APIEndpoint string `name:"api-endpoint" help:"Drive API root."`
	LogLevel    string `help:"Log level (debug, info, warn, error)."`
	LogFormat   string `help:"Log format (console, json)."`
	MetricsAddr string `help:"Serve Prometheus metrics on this address, e.g. :9090."`

	Sync    SyncCmd    `cmd:"" help:"Mirror a folder tree into a destination."`
	Folders FoldersCmd `cmd:"" help:"Walk a folder tree and print every folder."`
	List    ListCmd    `cmd:"" help:"List and filter files without downloading them."`
}

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error {
	return &exitError{code: code, err: err}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args, executes the selected command and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	var cli CLI
	exitCode := -1

	parser, err := kong.New(&cli,
		kong.Name("drivesync"),
		kong.Description("Mirror a Drive folder tree into a directory or bucket."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) {
			if exitCode < 0 {
				exitCode = code
			}
		}),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	kctx, err := parser.Parse(args)
	if exitCode >= 0 {
		return exitCode
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var perr *kong.ParseError
		if errors.As(err, &perr) && perr.Context != nil {
			perr.Context.PrintUsage(true)
		}
		return ExitInvalidArgs
	}

	rc := &runContext{cli: &cli, stdout: stdout, stderr: stderr}
	if err := kctx.Run(rc); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return ExitGeneralError
	}
	return ExitSuccess
}
