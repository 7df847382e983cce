package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/curasupply/curaledger/internal/config"
	"github.com/curasupply/curaledger/internal/gitops"
	"github.com/curasupply/curaledger/internal/importer"
)

func newInitCommand() *cobra.Command {
	var name string
	var driver string
	var useGit bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new curaledger project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd.OutOrStdout(), absDir, name, driver, useGit)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "business name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&driver, "driver", config.DriverCSV, "store driver: memory, csv or postgres")
	cmd.Flags().BoolVar(&useGit, "git", false, "track the project in git and commit every ledger change")

	return cmd
}

func runInit(out io.Writer, dir, name, driver string, useGit bool) error {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", cfgPath, err)
	}

	cfg := config.Default(name)
	cfg.Store.Driver = driver
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Create directory structure.
	dirs := append([]string{cfg.Store.DataDir, "logs"}, importer.Dirs...)
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Credentials and per-client state stay out of version control.
	gitignore := ".env\n" + cfg.Cart.Path + "\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	if !useGit {
		fmt.Fprintf(out, "Initialized curaledger project at %s (store: %s)\n", dir, driver)
		return nil
	}

	if err := gitops.Init(dir); err != nil {
		return err
	}
	author := gitops.Author{Name: cfg.Git.AuthorName, Email: cfg.Git.AuthorEmail}
	hash, err := gitops.CommitAll(dir, "init: Initialize "+name, author)
	if err != nil {
		return fmt.Errorf("initial commit: %w", err)
	}

	fmt.Fprintf(out, "Initialized curaledger project at %s (store: %s, %s)\n", dir, driver, hash)
	return nil
}
