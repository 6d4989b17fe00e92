// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The jvmcore tool reports the heap layout of a HotSpot JVM running the
// parallel scavenge collector, read from a core file or a live process.
// Run "jvmcore help" for a list of commands.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang.org/x/jvmcore/internal/config"
	"golang.org/x/jvmcore/internal/core"
	"golang.org/x/jvmcore/internal/hotspot"
	"golang.org/x/jvmcore/internal/vmstructs"
)

// Exit codes.
const (
	exitGeneric     = 1
	exitUsage       = 2
	exitVersionSkew = 3 // the target's type layouts are not what we expect
	exitTarget      = 4 // the target is unreadable or was read mid-update
)

// Top-level command.
var cmdRoot = &cobra.Command{
	Use:   "jvmcore",
	Short: "jvmcore reports the heap layout of a HotSpot JVM",
	Long: `
jvmcore reads the parallel scavenge heap of a HotSpot JVM from a core
file or a running process, without the JVM's cooperation.

Type layouts come from the vmStructs tables libjvm exports, or from a
schema file written earlier by "jvmcore schema dump".

Example:

  jvmcore --core core.1234 --exe $JAVA_HOME/bin/java universe
  jvmcore --pid 1234 --pause spaces
`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	Args:              usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Subcommands
var (
	cmdOverview = &cobra.Command{
		Use:   "overview",
		Short: "print a few overall statistics",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  withSession(runOverview),
	}

	cmdUniverse = &cobra.Command{
		Use:   "universe",
		Short: "print the heap and its generations",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  withSession(runUniverse),
	}

	cmdSpaces = &cobra.Command{
		Use:   "spaces",
		Short: "print the bounds and use of every space",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  withSession(runSpaces),
	}

	cmdRegions = &cobra.Command{
		Use:   "regions",
		Short: "list the regions that may hold live objects",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  withSession(runRegions),
	}

	cmdContains = &cobra.Command{
		Use:   "contains <address>...",
		Short: "say which space holds each address",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE:  withSession(runContains),
	}

	cmdMappings = &cobra.Command{
		Use:   "mappings",
		Short: "print virtual memory mappings",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  withSession(runMappings),
	}

	cmdRead = &cobra.Command{
		Use:   "read <address> [<size>]",
		Short: "read a chunk of memory",
		Args:  usageArgs(cobra.RangeArgs(1, 2)),
		RunE:  withSession(runRead),
	}

	cmdSchema = &cobra.Command{
		Use:   "schema",
		Short: "manage type layout schemas",
	}

	cmdSchemaDump = &cobra.Command{
		Use:   "dump <file>",
		Short: `write the target's type layouts to file, or stdout if file is "-"`,
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE:  withSession(runSchemaDump),
	}

	cmdTypes = &cobra.Command{
		Use:   "types [<type>]",
		Short: "list known types, or the fields of one type",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE:  withSession(runTypes),
	}

	cmdShell = &cobra.Command{
		Use:   "shell",
		Short: "run commands interactively",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  runShell,
	}
)

var (
	v          = config.New()
	configFile string
	verbose    bool

	// Set by setup.
	logger log.Logger = log.NewNopLogger()
	sess   *session
)

func init() {
	pf := cmdRoot.PersistentFlags()
	pf.String("core", "", "core file to read")
	pf.String("exe", "", "main executable file, if not the one named in the core")
	pf.String("base", "", "root directory to find core dump file references")
	pf.Int("pid", 0, "running process to read")
	pf.Bool("pause", false, "stop the process while a command runs")
	pf.String("schema", "", "type layout schema file; default is to read libjvm's vmStructs tables")
	pf.String("heap", "", "address of the heap; default is Universe::_collectedHeap")
	pf.Bool("stats", false, "log counts of target reads")
	pf.StringVar(&configFile, "config", "", "config file (default is ./jvmcore.yaml or $HOME/.jvmcore/jvmcore.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	if err := bindFlags(v); err != nil {
		panic(err)
	}

	cmdSchema.AddCommand(cmdSchemaDump)
	cmdRoot.AddCommand(
		cmdOverview,
		cmdUniverse,
		cmdSpaces,
		cmdRegions,
		cmdContains,
		cmdMappings,
		cmdRead,
		cmdSchema,
		cmdTypes,
		cmdShell)

	cmdRoot.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
}

// bindFlags makes the global flags override the config keys they name.
func bindFlags(v *viper.Viper) error {
	for key, name := range map[string]string{
		"target.core":  "core",
		"target.exe":   "exe",
		"target.base":  "base",
		"target.pid":   "pid",
		"target.pause": "pause",
		"target.heap":  "heap",
		"schema.file":  "schema",
		"stats":        "stats",
	} {
		if err := v.BindPFlag(key, cmdRoot.PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line args and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cmdRoot.SetArgs(args)
	cmdRoot.SetOut(stdout)
	cmdRoot.SetErr(stderr)
	err := cmdRoot.Execute()
	if sess != nil {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
		sess = nil
	}
	if err != nil {
		fmt.Fprintf(stderr, "jvmcore: %v\n", err)
	}
	return exitCode(err)
}

// setup loads the configuration and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(v, configFile)
	if err != nil {
		return usageError{err}
	}
	if verbose {
		c.Log.Level = "debug"
	}
	logger = newLogger(cmd.ErrOrStderr(), c.Log)
	sess = newSession(c, logger)
	return nil
}

func newLogger(w io.Writer, c config.LogConfig) log.Logger {
	var l log.Logger
	if c.Format == "json" {
		l = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		l = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}
	var allow level.Option
	switch c.Level {
	case "debug":
		allow = level.AllowDebug()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		allow = level.AllowInfo()
	}
	return log.With(level.NewFilter(l, allow), "ts", log.DefaultTimestampUTC)
}

// withSession adapts a command body to cobra. The target is paused
// around fn if so configured.
func withSession(fn func(s *session, w io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if sess == nil {
			return errors.New("no session")
		}
		resume, err := sess.pause()
		if err != nil {
			return err
		}
		err = fn(sess, cmd.OutOrStdout(), args)
		resume()
		sess.logStats()
		return err
	}
}

// A usageError is a mistake on the command line.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...interface{}) error {
	return usageError{fmt.Errorf(format, args...)}
}

func usageArgs(pa cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := pa(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// exitCode maps err to the process exit status.
func exitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue):
		return exitUsage
	case errors.Is(err, vmstructs.ErrUnknownType),
		errors.Is(err, vmstructs.ErrUnknownField),
		errors.Is(err, vmstructs.ErrFieldKind),
		errors.Is(err, vmstructs.ErrUnknownConstant),
		errors.Is(err, vmstructs.ErrNoIntrospection),
		errors.Is(err, hotspot.ErrWrongType):
		return exitVersionSkew
	case errors.Is(err, core.ErrTargetUnavailable),
		errors.Is(err, core.ErrInvalidAddress),
		errors.Is(err, hotspot.ErrNoHeap),
		errors.Is(err, hotspot.ErrBadRegion):
		return exitTarget
	}
	return exitGeneric
}
