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
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/blacktop/go-armemu"
	"github.com/blacktop/go-armemu/backend/hvf"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var (
	okColor   = color.New(color.FgGreen).SprintFunc()
	failColor = color.New(color.FgRed).SprintFunc()
)

// engineReport tries to load every registered engine and renders the
// outcome as a tree.
func engineReport() (treeprint.Tree, int) {
	tree := treeprint.NewWithRoot("engines")
	loaded := 0
	for _, name := range armemu.Engines() {
		if err := armemu.Init(name); err != nil {
			tree.AddNode(fmt.Sprintf("%s: %s", name, failColor(err)))
			continue
		}
		loaded++
		branch := tree.AddBranch(fmt.Sprintf("%s: %s", name, okColor("ok")))
		for _, is64 := range []bool{true, false} {
			c, err := armemu.New(is64, armemu.WithEngine(name), armemu.WithSink(armemu.NopSink{}))
			width := "aarch32"
			if is64 {
				width = "aarch64"
			}
			if err != nil {
				branch.AddNode(fmt.Sprintf("%s: %s", width, failColor(err)))
				continue
			}
			branch.AddNode(fmt.Sprintf("%s: %s (page size %#x)", width, okColor("ok"), c.PageSize()))
			c.Close()
		}
	}
	return tree, loaded
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check which emulation engines load on this host",
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, loaded := engineReport()
		fmt.Print(tree.String())

		ok, err := hvf.Supported()
		if err != nil {
			fmt.Printf("hv support: error: %v\n", err)
		} else {
			fmt.Printf("hv support: %v\n", ok)
		}

		if runtime.GOOS == "darwin" {
			exe, _ := os.Executable()
			if exe != "" {
				out, _ := exec.Command("codesign", "-dv", "--entitlements", "-", exe).CombinedOutput()
				entOK := strings.Contains(string(out), "com.apple.security.hypervisor")
				fmt.Printf("entitlements: hypervisor=%v\n", entOK)
			} else {
				fmt.Println("entitlements: unknown (executable path not found)")
			}
		}

		if loaded == 0 {
			return fmt.Errorf("no engine could be loaded")
		}
		return nil
	},
}
