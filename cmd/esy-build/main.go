// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"
	"zombiezen.com/go/bass/sigterm"
	"zombiezen.com/go/log"

	"esy.sh/build/builder"
	"esy.sh/build/eject"
	"esy.sh/build/sandbox"
)

func main() {
	rootCommand := &cobra.Command{
		Use:           "esy-build",
		Short:         "package sandbox build orchestrator",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	g := defaultGlobalConfig()
	if err := g.mergeFiles(configFilePaths()); err != nil {
		initLogging(false)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
	g.mergeEnvironment()

	rootCommand.PersistentFlags().Var((*absPathFlag)(&g.StorePath), "store", "`path` to the shared store")
	rootCommand.PersistentFlags().Var((*absPathFlag)(&g.SandboxPath), "sandbox", "`path` to the sandbox root")
	rootCommand.PersistentFlags().StringVar(&g.PlanPath, "plan", g.PlanPath, "`path` to the build plan file")
	showDebug := rootCommand.PersistentFlags().Bool("debug", g.Debug, "show debugging output")

	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogging(*showDebug)
		return g.validate()
	}

	rootCommand.AddCommand(
		newBuildCommand(g),
		newEjectCommand(g),
		newShellCommand(g),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), sigterm.Signals()...)
	err := rootCommand.ExecuteContext(ctx)
	cancel()
	if err != nil {
		initLogging(*showDebug)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
}

func newBuildCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "build",
		Short:                 "build the sandbox into the store",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runBuild(cmd.Context(), g)
	}
	return c
}

func runBuild(ctx context.Context, g *globalConfig) error {
	sb, err := g.loadSandbox()
	if err != nil {
		return err
	}
	cfg, err := sandbox.NewConfig(g.StorePath, g.SandboxPath)
	if err != nil {
		return err
	}
	bd := builder.New(cfg, nil)
	return bd.Build(ctx, sb)
}

type ejectOptions struct {
	outputPath string
}

func newEjectCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "eject [options]",
		Short:                 "emit a portable Make-driven build tree",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(ejectOptions)
	c.Flags().StringVarP(&opts.outputPath, "output", "o", "", "`path` of the emitted tree (default SANDBOX/_esy/build-eject)")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runEject(cmd.Context(), g, opts)
	}
	return c
}

func runEject(ctx context.Context, g *globalConfig, opts *ejectOptions) error {
	sb, err := g.loadSandbox()
	if err != nil {
		return err
	}
	outputPath := opts.outputPath
	if outputPath == "" {
		outputPath = g.SandboxPath + "/_esy/build-eject"
	}
	return eject.Eject(ctx, sb, outputPath)
}

func newShellCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "shell PACKAGE",
		Short:                 "print the composed build environment for a package",
		DisableFlagsInUseLine: true,
		Args:                  cobra.ExactArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runShell(cmd.Context(), g, args[0])
	}
	return c
}

func runShell(ctx context.Context, g *globalConfig, packageName string) error {
	sb, err := g.loadSandbox()
	if err != nil {
		return err
	}
	cfg, err := sandbox.NewConfig(g.StorePath, g.SandboxPath)
	if err != nil {
		return err
	}
	var target *sandbox.Build
	for b := range sandbox.Walk(sb.Root) {
		if b.Name == packageName || sandbox.NormalizeName(b.Name) == packageName {
			target = b
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no package named %q in the sandbox", packageName)
	}
	env, err := sandbox.ComposeEnvironment(cfg, target, sb.Env)
	if err != nil {
		return err
	}
	_, err = fmt.Print(env.Render())
	return err
}

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "esy-build: ", log.StdFlags, nil),
		})
	})
}
