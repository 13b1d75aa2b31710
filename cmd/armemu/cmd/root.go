/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/blacktop/go-armemu"
	"github.com/spf13/cobra"
)

var (
	engineName string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:          "armemu",
	Short:        "Drive ARM emulation contexts from the command line",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&engineName, "engine", "e", armemu.ConfigFromEnv().Engine,
		fmt.Sprintf("Emulation engine (%s)", strings.Join(armemu.Engines(), ", ")))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Log every engine call to stderr")
}

// newContext loads the selected engine and opens a context on it.
func newContext(name string, is64Bit bool) (*armemu.Context, error) {
	if name == "" {
		name = engineName
	}
	if err := armemu.Init(name); err != nil {
		return nil, err
	}
	return armemu.New(is64Bit, armemu.WithEngine(name))
}
