package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-estates/config"
	"github.com/aluiziolira/go-scrape-estates/pipeline"
)

func newCheckpointCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or migrate the auction crawl checkpoint",
	}
	cmd.PersistentFlags().StringVar(&cfg.CheckpointFile, "checkpoint", cfg.CheckpointFile, "Checkpoint file name")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showCheckpoint(cmd.OutOrStdout(), pipeline.NewCheckpointStore(cfg.CheckpointPath()))
		},
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Create a checkpoint from the last row of the legacy error-save workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return importCheckpoint(cmd.OutOrStdout(), cfg)
		},
	}
	importCmd.Flags().StringVar(&cfg.LegacyErrorFile, "legacy-file", cfg.LegacyErrorFile, "Legacy error-save workbook name")
	importCmd.Flags().StringVar(&cfg.LegacyKeyColumn, "key-column", cfg.LegacyKeyColumn, "Column holding the asset name")
	importCmd.Flags().StringVar(&cfg.Province, "province", cfg.Province, "Province the legacy run crawled")
	importCmd.Flags().StringVar(&cfg.City, "city", cfg.City, "City the legacy run crawled")
	importCmd.Flags().IntVar(&cfg.StartPage, "page", cfg.StartPage, "Listing page to resume the search on")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return pipeline.NewCheckpointStore(cfg.CheckpointPath()).Clear()
		},
	}

	cmd.AddCommand(show, importCmd, clearCmd)
	return cmd
}

func showCheckpoint(w io.Writer, store *pipeline.CheckpointStore) error {
	cp, err := store.Load()
	if errors.Is(err, pipeline.ErrNoCheckpoint) {
		fmt.Fprintf(w, "no checkpoint at %s\n", store.Path())
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "checkpoint %s\n", store.Path())
	fmt.Fprintf(w, "  run:       %s\n", cp.RunID)
	fmt.Fprintf(w, "  location:  %s/%s\n", cp.Province, cp.City)
	fmt.Fprintf(w, "  page:      %d\n", cp.Page)
	fmt.Fprintf(w, "  item:      %d\n", cp.ItemIndex)
	fmt.Fprintf(w, "  last key:  %s\n", cp.LastKey)
	fmt.Fprintf(w, "  updated:   %s\n", cp.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func importCheckpoint(w io.Writer, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	legacy := cfg.ResumeSourcePath()
	key, err := pipeline.ImportLegacy(legacy, cfg.OutputSheet, cfg.LegacyKeyColumn)
	if errors.Is(err, pipeline.ErrNoCheckpoint) {
		return fmt.Errorf("nothing to import from %s", legacy)
	}
	if err != nil {
		return err
	}

	store := pipeline.NewCheckpointStore(cfg.CheckpointPath())
	// The item index is unknown; the walker finds the key by name.
	cp := pipeline.Checkpoint{
		RunID:    "legacy-import",
		Province: cfg.Province,
		City:     cfg.City,
		Page:     cfg.StartPage,
		LastKey:  key,
	}
	if err := store.Save(cp); err != nil {
		return err
	}
	slog.Info("checkpoint imported", slog.String("from", legacy), slog.String("key", key))
	fmt.Fprintf(w, "imported %q into %s\n", key, store.Path())
	return nil
}
