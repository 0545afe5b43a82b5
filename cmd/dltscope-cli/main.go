package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/tinytelemetry/dltscope/internal/socketrpc"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var socketPath string
	var showVersion bool

	flagSet := pflag.NewFlagSet("dltscope-cli", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&socketPath, "socket", socketrpc.DefaultSocketPath(), "socket path of the dltscope service")
	flagSet.BoolVar(&showVersion, "version", false, "print version information")
	flagSet.Usage = func() { printUsage(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("dltscope CLI\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(flagSet)
		return errors.New("missing command")
	}
	cmd, ok := lookupCommand(rest[0])
	if !ok {
		printUsage(flagSet)
		return fmt.Errorf("unknown command %q", rest[0])
	}

	client, err := socketrpc.Dial(socketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to dltscope service at %s: %w\nIs the service running? Start it with: dltscope", socketPath, err)
	}
	defer client.Close()

	return cmd.run(client, rest[1:], os.Stdout)
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: dltscope-cli [flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n%s", flagSet.FlagUsages())
}
