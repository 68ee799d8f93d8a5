package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Status   *StatusCommand
	List     *ListCommand
	Add      *AddCommand
	Classify *ClassifyCommand
	Ingest   *IngestCommand
	Start    *StartCommand
	Stop     *StopCommand
	Purge    *PurgeCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "secbrain"
	parser.LongDescription = "Capture videos, links, images and notes from a WhatsApp chat into a local second brain."

	cmds := &commands{
		Status:   &StatusCommand{globals: &globals, version: version},
		List:     &ListCommand{globals: &globals, version: version},
		Add:      &AddCommand{globals: &globals, version: version},
		Classify: &ClassifyCommand{globals: &globals, version: version},
		Ingest:   &IngestCommand{globals: &globals, version: version},
		Start:    &StartCommand{globals: &globals, version: version},
		Stop:     &StopCommand{globals: &globals, version: version},
		Purge:    &PurgeCommand{globals: &globals, version: version},
	}

	parser.AddCommand("status", "Show store statistics and daemon health", "Show store statistics, storage paths and whether the daemon is running.", cmds.Status)
	parser.AddCommand("list", "List stored entries, videos or links", "List stored entries, videos or links, newest first.", cmds.List)
	parser.AddCommand("add", "Ingest a message manually", "Run a manually entered message through the same rules as the chat poller.", cmds.Add)
	parser.AddCommand("classify", "Classify URLs", "Print whether each URL would be stored as a video or as a platform link.", cmds.Classify)
	parser.AddCommand("ingest", "Run the secbrain daemon", "Run the secbrain daemon: store, WhatsApp poller and local HTTP control surface.", cmds.Ingest)
	parser.AddCommand("start", "Start the poller on a running daemon", "Ask the running daemon to connect to WhatsApp Web and start polling.", cmds.Start)
	parser.AddCommand("stop", "Stop the poller on a running daemon", "Ask the running daemon to stop polling and close the browser.", cmds.Stop)
	parser.AddCommand("purge", "Delete ALL secbrain data", "Delete ALL secbrain data. Destructive operation with safety prompt.", cmds.Purge)

	return parser, &globals, cmds
}

// Run is the main entry point for the secbrain CLI using os.Args.
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
			fmt.Printf("secbrain %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
