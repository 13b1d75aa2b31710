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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/blacktop/go-armemu"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stressCmd)
	stressCmd.Flags().IntP("contexts", "n", 2, "Contexts, one goroutine each")
	stressCmd.Flags().IntP("writes", "k", 10000, "Register and memory writes per context")
	stressCmd.Flags().Bool("metrics", false, "Print facade metrics as JSON")
}

const stressBase = 0x100000

// stressContext hammers one context with writes tagged by id and verifies
// every register and the last memory slot still carry that tag.
func stressContext(id, writes int) error {
	ctx, err := newContext("", true)
	if err != nil {
		return err
	}
	defer ctx.Close()

	if err := ctx.MemMap(stressBase, 0x10000, armemu.MemRead|armemu.MemWrite); err != nil {
		return err
	}

	tag := uint64(id) << 32
	buf := make([]byte, 8)
	for i := range writes {
		r := armemu.Reg(i % int(armemu.MaxReg+1))
		if err := ctx.RegWrite(r, tag|uint64(i)); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(buf, tag|uint64(i))
		if err := ctx.MemWrite(stressBase+uint64(i%0x2000)*8, buf); err != nil {
			return err
		}
	}

	for r := armemu.MinReg; r <= armemu.MaxReg && int(r) < writes; r++ {
		v, err := ctx.RegRead(r)
		if err != nil {
			return err
		}
		if v>>32 != uint64(id) {
			return fmt.Errorf("context %d: %s=0x%x carries another context's tag", id, r, v)
		}
	}
	if writes > 0 {
		last := writes - 1
		b, err := ctx.MemRead(stressBase+uint64(last%0x2000)*8, 8)
		if err != nil {
			return err
		}
		if got := binary.LittleEndian.Uint64(b); got != tag|uint64(last) {
			return fmt.Errorf("context %d: memory holds 0x%x, want 0x%x", id, got, tag|uint64(last))
		}
	}
	return nil
}

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Drive independent contexts from concurrent goroutines and verify isolation",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := cmd.Flags().GetInt("contexts")
		if err != nil {
			return err
		}
		writes, err := cmd.Flags().GetInt("writes")
		if err != nil {
			return err
		}
		showMetrics, err := cmd.Flags().GetBool("metrics")
		if err != nil {
			return err
		}
		if n < 1 || writes < 0 {
			return fmt.Errorf("need at least one context and a non-negative write count")
		}

		armemu.ResetMetrics()
		start := time.Now()

		errs := make([]error, n)
		var wg sync.WaitGroup
		for id := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[id] = stressContext(id+1, writes)
			}()
		}
		wg.Wait()

		failed := 0
		for id, err := range errs {
			if err != nil {
				failed++
				fmt.Printf("context %d: %s\n", id+1, failColor(err))
			}
		}
		fmt.Printf("%d contexts x %d writes on %s in %s: ", n, writes, engineName, time.Since(start).Round(time.Millisecond))
		if failed > 0 {
			fmt.Println(failColor("FAILED"))
		} else {
			fmt.Println(okColor("isolated"))
		}

		if showMetrics {
			out, err := json.MarshalIndent(armemu.GetMetrics(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d contexts failed", failed, n)
		}
		return nil
	},
}
