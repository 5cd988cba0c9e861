package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"charting-engine/internal/barsource"
	sqlitestore "charting-engine/internal/store/sqlite"
)

func init() {
	importCmd.Flags().String("input", "", "bar file (.csv, .parquet, .json)")
	importCmd.Flags().String("symbol", "", "symbol to store the bars under")
	importCmd.MarkFlagRequired("input")
	importCmd.MarkFlagRequired("symbol")

	exportCmd.Flags().String("output", "", "bar file to write (.csv, .parquet, .json)")
	exportCmd.Flags().String("symbol", "", "symbol to export")
	exportCmd.MarkFlagRequired("output")
	exportCmd.MarkFlagRequired("symbol")

	rootCmd.AddCommand(importCmd, exportCmd)
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "load a bar file into the SQLite store",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		symbol, _ := cmd.Flags().GetString("symbol")
		bars, err := barsource.Load(input)
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("db")
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrap(err, "create db dir")
			}
		}
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: path})
		if err != nil {
			return err
		}
		defer w.Close()

		ctx := context.Background()
		if err := w.InsertBars(ctx, symbol, bars); err != nil {
			return err
		}
		last, err := w.GetLastTimestamp(ctx, symbol)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d bars into %s (last ts %d)\n", len(bars), symbol, last)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "write the stored bars of a symbol to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		symbol, _ := cmd.Flags().GetString("symbol")
		reader, err := openReader(cmd)
		if err != nil {
			return err
		}
		defer reader.Close()

		bars, err := reader.ReadTail(context.Background(), symbol, 0)
		if err != nil {
			return err
		}
		if err := barsource.Save(output, bars); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d bars of %s to %s\n", len(bars), symbol, output)
		return nil
	},
}
