// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/chzyer/readline"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func runShell(cmd *cobra.Command, args []string) error {
	if sess == nil {
		return fmt.Errorf("no session")
	}
	t, err := sess.target()
	if err != nil {
		return err
	}

	done := false
	root := shellRoot(cmd.Root(), cmd.OutOrStdout(), func() { done = true })

	rootCompleter := readline.NewPrefixCompleter()
	for _, child := range root.Commands() {
		cmdToCompleter(rootCompleter, child)
	}
	shell, err := readline.NewEx(&readline.Config{
		Prompt:       "(jvmcore) ",
		AutoComplete: rootCompleter,
		EOFPrompt:    "\n",
	})
	if err != nil {
		return err
	}
	defer shell.Close()

	fmt.Fprintln(shell.Terminal)
	fmt.Fprintf(shell.Terminal, "Reading %s target with %d mappings\n", t.Arch(), len(t.Mappings()))
	fmt.Fprintf(shell.Terminal, "Entering interactive mode (type 'help' for commands)\n")

	for !done {
		l, err := shell.Readline()
		if err != nil {
			if err != io.EOF && err != readline.ErrInterrupt {
				return err
			}
			break
		}
		if strings.TrimSpace(l) == "" {
			continue
		}
		if err := capturePanic(func() error {
			resetSubCommandFlagValues(root)
			root.SetArgs(strings.Fields(l))
			return root.Execute()
		}); err != nil {
			fmt.Fprintf(shell.Terminal, "Error: %v\n", err)
			level.Debug(logger).Log("msg", "shell command failed", "line", l, "exit", exitCode(err))
		}
	}
	return nil
}

// shellRoot returns a root command holding the subcommands of top
// other than shell itself, plus exit.
func shellRoot(top *cobra.Command, out io.Writer, exit func()) *cobra.Command {
	root := &cobra.Command{
		Use:           "jvmcore",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	for _, sub := range top.Commands() {
		switch sub.Name() {
		case "shell", "completion":
			continue
		case "help":
			root.SetHelpCommand(sub)
			continue
		}
		root.AddCommand(sub)
	}
	root.AddCommand(&cobra.Command{
		Use:     "exit",
		Aliases: []string{"quit", "bye"},
		Short:   "exit from interactive mode",
		Run: func(*cobra.Command, []string) {
			exit()
		},
	})
	return root
}

func capturePanic(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v\nStack: %s", r, debug.Stack())
		}
	}()
	return fn()
}

func cmdToCompleter(parent readline.PrefixCompleterInterface, c *cobra.Command) {
	completer := readline.PcItem(c.Name())
	parent.SetChildren(append(parent.GetChildren(), completer))
	for _, child := range c.Commands() {
		cmdToCompleter(completer, child)
	}
}

func resetSubCommandFlagValues(root *cobra.Command) {
	for _, c := range root.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				f.Value.Set(f.DefValue)
				f.Changed = false
			}
		})
	}
}
