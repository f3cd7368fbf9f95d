package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/locator"
)

func newDisasmCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "disasm <file|type>...",
		Short: "Print a listing of class files",
		Long:  `Disassembles class files read from disk, or stored types when --db is given.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var loc locator.ClassFileLocator = locator.LocatorFunc(os.ReadFile)
			if dbPath != "" {
				cp, err := locator.OpenClassPath(dbPath)
				if err != nil {
					return err
				}
				defer cp.Close()
				loc = cp
			}

			for _, arg := range args {
				binary, err := loc.Locate(arg)
				if err != nil {
					return fmt.Errorf("cannot read %s: %w", arg, err)
				}
				cf, err := classfile.Unmarshal(binary)
				if err != nil {
					return fmt.Errorf("%s: %w", arg, err)
				}
				fmt.Fprint(cmd.OutOrStdout(), classfile.Disassemble(cf))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "read types from a class path database")
	return cmd
}
