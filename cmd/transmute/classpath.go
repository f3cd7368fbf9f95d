package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/transmute/locator"
)

const defaultDB = "classpath.db"

func newClassPathCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "classpath",
		Short: "Manage a class path database",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "class path database")

	put := &cobra.Command{
		Use:   "put <file>...",
		Short: "Store class files, replacing earlier definitions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClassPath(dbPath, func(cp *locator.ClassPath) error {
				for _, path := range args {
					binary, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("cannot read %s: %w", path, err)
					}
					name, err := cp.Put(binary)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", name)
				}
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClassPath(dbPath, func(cp *locator.ClassPath) error {
				names, err := cp.Names()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <type>...",
		Short: "Remove stored types",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClassPath(dbPath, func(cp *locator.ClassPath) error {
				for _, name := range args {
					removed, err := cp.Delete(name)
					if err != nil {
						return err
					}
					if !removed {
						return fmt.Errorf("%s is not on the class path", name)
					}
				}
				return nil
			})
		},
	}

	cmd.AddCommand(put, list, rm)
	return cmd
}

func withClassPath(dbPath string, fn func(cp *locator.ClassPath) error) error {
	cp, err := locator.OpenClassPath(dbPath)
	if err != nil {
		return err
	}
	defer cp.Close()
	return fn(cp)
}
