// Command ptoc compiles a plan DSL source file into the binary plan.Plan
// format consumed by ptorun.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hengliao1972/pto-isa-sub000/compiler"
)

func main() {
	root := &cobra.Command{
		Use:     "ptoc <src.ptodsl> <out.ptop>",
		Short:   "Compile a plan DSL source file into a binary plan",
		Version: "1.0.0",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcFile, outFile := args[0], args[1]
			if err := compiler.Compile(srcFile, outFile); err != nil {
				return fmt.Errorf("compilation failed: %w", err)
			}
			fmt.Printf("compiled %s -> %s\n", srcFile, outFile)
			return nil
		},
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
