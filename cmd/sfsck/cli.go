/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vorteil-labs/sfs/internal/elog"
	"github.com/vorteil-labs/sfs/pkg/fsck"
)

var log elog.View

var (
	flagJSON    bool
	flagVerbose int
)

func commandInit() {
	rootCmd.Flags().BoolVarP(&flagJSON, "json", "j", false, "print the report as JSON")
	rootCmd.Flags().CountVarP(&flagVerbose, "verbose", "v", "print one summary line per list walked")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logger := &elog.CLI{
			DisableTTY: flagJSON || !isatty.IsTerminal(os.Stderr.Fd()),
		}

		if flagJSON {
			logrus.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logrus.SetFormatter(logger)
		}
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.TraceLevel)

		if flagVerbose >= 2 {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose == 1 {
			logger.IsVerbose = true
		}

		log = logger
		return nil
	}
}

var rootCmd = &cobra.Command{
	Use:   "sfsck IMAGE",
	Short: "Check an sfs volume for consistency",
	Long: `sfsck opens an sfs volume image read-only and checks that every block is
reachable from exactly one of the free list or a live file's block chain.
It never modifies the image. Exit status is nonzero if any error-severity
finding was reported.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(args[0])
	},
}

func runCheck(path string) error {
	report, err := fsck.Check(path, log)
	if err != nil {
		return fmt.Errorf("sfsck: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("sfsck: %w", err)
		}
	} else {
		printReport(report)
	}

	if !report.Clean() {
		os.Exit(1)
	}
	return nil
}

func printReport(r *fsck.Report) {
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Printf("%d blocks total, %d free, %d in files\n", r.NBlocks, r.FreeBlocks, r.FileBlocks)

	for _, f := range r.Findings {
		prefix := yellow("warning")
		if f.Severity == fsck.SeverityError {
			prefix = red("error")
		}
		if f.Block != 0 {
			fmt.Printf("%s: block %d: %s\n", prefix, f.Block, f.Message)
		} else {
			fmt.Printf("%s: %s\n", prefix, f.Message)
		}
	}

	if r.Clean() {
		fmt.Println("clean")
	}
}
