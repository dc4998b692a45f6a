package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

type command struct {
	name    string
	usage   string
	summary string
	run     func(env *environment, args []string) error
}

type environment struct {
	stdout io.Writer
	stderr io.Writer
}

var commands = []command{
	{"inspect", "inspect FILE", "print the fields of a .torrent file", runInspect},
	{"decode", "decode FILE [--format json|yaml|cbor] [-o OUT]", "convert a bencoded file to JSON, YAML or CBOR", runDecode},
	{"encode", "encode FILE.json [-o OUT]", "convert JSON (comments allowed) to canonical bencode", runEncode},
	{"announce", "announce FILE [--port N] [--timeout D]", "ask the torrent's tracker for peers", runAnnounce},
	{"metadata", "metadata INFOHASH ADDR [-o OUT] [--tracker URL]", "fetch a torrent's info dictionary from a peer", runMetadata},
	{"serve", "serve [--config PATH] [--listen ADDR]", "run the HTTP decode/encode and catalog service", runServe},
}

func main() {
	env := &environment{stdout: os.Stdout, stderr: os.Stderr}
	if err := run(env, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(env *environment, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(env.stderr)
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			err := cmd.run(env, args[1:])
			if errors.Is(err, pflag.ErrHelp) {
				return nil
			}
			return err
		}
	}
	printUsage(env.stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, "torrent - bencode and torrent file tool\n\nUSAGE\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "    torrent %s\n", cmd.usage)
	}
	fmt.Fprint(w, "\nCOMMANDS\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "    %-10s %s\n", cmd.name, cmd.summary)
	}
}

func newFlagSet(env *environment, name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.SetOutput(env.stderr)
	return flagSet
}

// parseArgs parses flags and checks the number of positional arguments.
func parseArgs(flagSet *pflag.FlagSet, args []string, positional ...string) ([]string, error) {
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	rest := flagSet.Args()
	if len(rest) != len(positional) {
		return nil, fmt.Errorf("%s: expected %d argument(s) %v, got %d", flagSet.Name(), len(positional), positional, len(rest))
	}
	return rest, nil
}
