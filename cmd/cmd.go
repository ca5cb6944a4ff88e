// Package cmd implements the devserve command
//
// It is in a sub package so its internals can be re-used elsewhere
package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aaronboult/rust-simulation-engine/lib/atexit"
	"github.com/aaronboult/rust-simulation-engine/lib/buildinfo"
	"github.com/aaronboult/rust-simulation-engine/lib/log"
)

// Globals
var (
	version bool
	// Errors
	errorNotEnoughArguments = errors.New("not enough arguments")
	errorTooManyArguments   = errors.New("too many arguments")
)

const (
	exitCodeSuccess = iota
	exitCodeUsageError
	exitCodeUncategorizedError
)

// Root is the main devserve command
var Root = &cobra.Command{
	Use:   "devserve",
	Short: "Serve WebAssembly test builds over HTTP for local development.",
	Long: `Devserve is a small web server for testing WebAssembly builds of the
simulation engine locally.  It serves index.html at the root path,
serves the build artifacts from the current directory and makes sure
.js and .wasm files are sent with the content type browsers need to
run them.

It is a development convenience and must not be exposed beyond
localhost.
`,
	Run: func(command *cobra.Command, args []string) {
		if version {
			ShowVersion()
			resolveExitCode(nil)
		}
		_ = command.Usage()
		if len(args) > 0 {
			_, _ = fmt.Fprintf(os.Stderr, "Command not found.\n")
		}
		resolveExitCode(errorNotEnoughArguments)
	},
}

func init() {
	Root.Flags().BoolVarP(&version, "version", "V", false, "Print the version number")
	log.AddFlags(pflag.CommandLine)
	cobra.OnInitialize(initConfig)
}

// ShowVersion prints the version to stdout
func ShowVersion() {
	osVersion, osKernel := buildinfo.GetOSVersion()
	if osVersion == "" {
		osVersion = "unknown"
	}
	if osKernel == "" {
		osKernel = "unknown"
	}

	linking, tagString := buildinfo.GetLinkingAndTags()

	fmt.Printf("devserve %s\n", buildinfo.Version)
	fmt.Printf("- os/version: %s\n", osVersion)
	fmt.Printf("- os/kernel: %s\n", osKernel)
	fmt.Printf("- os/type: %s\n", runtime.GOOS)
	fmt.Printf("- os/arch: %s\n", runtime.GOARCH)
	fmt.Printf("- go/version: %s\n", runtime.Version())
	fmt.Printf("- go/linking: %s\n", linking)
	fmt.Printf("- go/tags: %s\n", tagString)
}

// CheckArgs checks there are enough arguments and prints a message if not
func CheckArgs(MinArgs, MaxArgs int, cmd *cobra.Command, args []string) {
	if len(args) < MinArgs {
		_ = cmd.Usage()
		_, _ = fmt.Fprintf(os.Stderr, "Command %s needs %d arguments minimum: you provided %d non flag arguments: %q\n", cmd.Name(), MinArgs, len(args), args)
		resolveExitCode(errorNotEnoughArguments)
	} else if len(args) > MaxArgs {
		_ = cmd.Usage()
		_, _ = fmt.Fprintf(os.Stderr, "Command %s needs %d arguments maximum: you provided %d non flag arguments: %q\n", cmd.Name(), MaxArgs, len(args), args)
		resolveExitCode(errorTooManyArguments)
	}
}

// initConfig is run by cobra after initialising the flags
func initConfig() {
	// Start the logger
	log.InitLogging()

	// Write the args for debug purposes
	log.Debugf("devserve", "Version %q starting with parameters %q", buildinfo.Version, os.Args)
}

func resolveExitCode(err error) {
	atexit.Run()
	switch {
	case err == nil:
		os.Exit(exitCodeSuccess)
	case errors.Is(err, errorNotEnoughArguments), errors.Is(err, errorTooManyArguments):
		os.Exit(exitCodeUsageError)
	default:
		os.Exit(exitCodeUncategorizedError)
	}
}

// setupRootCommand attaches the global flags to the root command
func setupRootCommand(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
}

// Main runs devserve interpreting flags and commands out of os.Args
func Main() {
	setupRootCommand(Root)
	if err := Root.Execute(); err != nil {
		log.Fatalf(nil, "Fatal error: %v", err)
	}
	resolveExitCode(nil)
}
