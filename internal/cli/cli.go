// Package cli implements the webmention-receiver command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Serve   *ServeCommand
	Migrate *MigrateCommand
	Backups *BackupsCommand
	Restore *RestoreCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string, out io.Writer) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "webmention-receiver"
	parser.LongDescription = "Receives webmentions for a set of domains and publishes them as HTML pages, Atom feeds and JSON."

	cmds := &commands{
		Serve:   &ServeCommand{globals: &globals, version: version},
		Migrate: &MigrateCommand{globals: &globals, out: out},
		Backups: &BackupsCommand{globals: &globals, out: out},
		Restore: &RestoreCommand{globals: &globals, out: out},
	}

	parser.AddCommand("serve", "Run the receiver", "Migrate the database and serve HTTP until interrupted.", cmds.Serve)
	parser.AddCommand("migrate", "Migrate the database", "Bring the database schema up to date, taking a snapshot before each step.", cmds.Migrate)
	parser.AddCommand("backups", "List migration snapshots", "List the snapshots taken before schema migrations, newest first.", cmds.Backups)
	parser.AddCommand("restore", "Restore a migration snapshot", "Verify a snapshot and copy it over the database. The server must be stopped.", cmds.Restore)

	return parser, &globals, cmds
}

// Run is the main entry point for the CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// go-flags requires a subcommand, but --version is valid without one.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("webmention-receiver %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version, os.Stdout)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			return nil
		}
		return err
	}

	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
