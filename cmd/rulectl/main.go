// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command rulectl is the offline companion to cmd/ruleengine: compile a
// rule source file and print its compiled stats, validate one without
// compiling, or explain how a single event would be evaluated against it
// with a full predicate trace.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/basecond"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/cache"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/compiler"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/eval"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/event"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/rulesource"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/tracing"
)

func main() {
	root := &cobra.Command{
		Use:   "rulectl",
		Short: "Compile, validate and explain ruleforge rule sources",
	}
	root.AddCommand(newCompileCmd(), newValidateCmd(), newExplainCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <rules-file>",
		Short: "Compile a rule source file and print the resulting model stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := loadDocs(args[0])
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			m, warnings, err := compiler.Compile(logger, docs)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", w.String())
			}

			return json.NewEncoder(os.Stdout).Encode(m.Stats)
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules-file>",
		Short: "Run semantic validation on a rule source file without compiling it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := loadDocs(args[0])
			if err != nil {
				return err
			}

			valid, warnings, err := rulesource.Validate(docs)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", w.String())
			}
			fmt.Printf("%d enabled rule(s) valid\n", len(valid))
			return nil
		},
	}
}

func newExplainCmd() *cobra.Command {
	var level string
	cmd := &cobra.Command{
		Use:   "explain <rules-file> <event-file>",
		Short: "Compile a rule source and show a full trace of one event's evaluation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := loadDocs(args[0])
			if err != nil {
				return err
			}

			eventData, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading event file: %w", err)
			}
			var ev event.Event
			if err := json.Unmarshal(eventData, &ev); err != nil {
				return fmt.Errorf("decoding event file: %w", err)
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			m, _, err := compiler.Compile(logger, docs)
			if err != nil {
				return err
			}

			traceLevel, ok := parseLevel(level)
			if !ok {
				return fmt.Errorf("unknown trace level %q (want NONE, RULE_ONLY, STANDARD, FULL)", level)
			}

			c := cache.NewLRU(1000, time.Minute, false)
			defer c.Close()
			bc := basecond.New(c, time.Minute, logger)
			evaluator := eval.New(bc, eval.Config{}, logger)

			result, trace := evaluator.EvaluateTraced(context.Background(), m, ev, traceLevel)

			out := struct {
				Result eval.MatchResult `json:"result"`
				Trace  tracing.Trace    `json:"trace"`
			}{result, trace}
			return json.NewEncoder(os.Stdout).Encode(out)
		},
	}
	cmd.Flags().StringVar(&level, "level", "FULL", "trace level: NONE, RULE_ONLY, STANDARD, FULL")
	return cmd
}

func parseLevel(s string) (tracing.Level, bool) {
	switch s {
	case "NONE":
		return tracing.None, true
	case "RULE_ONLY":
		return tracing.RuleOnly, true
	case "STANDARD":
		return tracing.Standard, true
	case "FULL":
		return tracing.Full, true
	default:
		return tracing.None, false
	}
}

func loadDocs(path string) ([]rulesource.RuleDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rulesource.Decode(data, filepath.Ext(path))
}
