/*
 * Copyright 2021 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command icdemo drives the six end-to-end scenarios from spec.md §8
// against the inline-cache/rewriter subsystem and reports IC statistics.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pyston/pyston-v1-sub002/internal/rtlog"
)

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:   "icdemo",
		Short: "Run the inline-cache subsystem's end-to-end demo scenarios",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug-level IC/rewriter events to stderr")

	runCmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Run all scenarios, or a single one by letter (a-f)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				rtlog.Default(zerolog.DebugLevel)
			}

			var which string
			if len(args) > 0 {
				which = args[0]
			}

			results, err := RunScenarios(which)
			if err != nil {
				return err
			}
			printResults(results)
			for _, r := range results {
				if !r.Passed {
					os.Exit(1)
				}
			}
			return nil
		},
	}
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printResults(results []ScenarioResult) {
	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s — %s\n", status, r.Name, r.Detail)
		if r.Stats != "" {
			fmt.Printf("       %s\n", r.Stats)
		}
	}
}
