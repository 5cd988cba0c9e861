package main

import (
	"context"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"charting-engine/internal/barsource"
	"charting-engine/internal/indicator"
	"charting-engine/internal/model"
	sqlitestore "charting-engine/internal/store/sqlite"
)

func init() {
	computeCmd.Flags().String("indicator", "", "indicator name, e.g. MACD")
	computeCmd.Flags().String("params", "", "params as p1/p2/..., empty for defaults")
	computeCmd.Flags().String("input", "", "bar file (.csv, .parquet, .json)")
	computeCmd.Flags().String("symbol", "", "read bars of this symbol from --db")
	computeCmd.Flags().Int("tail", 20, "number of latest bars to print, 0 for all")
	computeCmd.Flags().String("placeholder", indicator.DefaultPlaceholder, "shown for undefined values")
	computeCmd.MarkFlagRequired("indicator")
	rootCmd.AddCommand(computeCmd)
}

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "compute an indicator and print the latest tooltips",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := newRegistry(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("indicator")
		rawParams, _ := cmd.Flags().GetString("params")
		params, err := indicator.ParseParams(rawParams)
		if err != nil {
			return err
		}
		series, err := loadSeries(cmd)
		if err != nil {
			return err
		}

		res, err := reg.Compute(strings.ToUpper(name), series, params)
		if err != nil {
			return err
		}

		tail, _ := cmd.Flags().GetInt("tail")
		placeholder, _ := cmd.Flags().GetString("placeholder")
		start := 0
		if tail > 0 && tail < len(series) {
			start = len(series) - tail
		}

		t := newTable(cmd)
		t.SetTitle("%s(%s) over %d bars", res.Name, res.Params.String(), len(series))
		header := table.Row{"#", "time", "close"}
		for _, p := range res.Plots {
			header = append(header, strings.TrimSpace(strings.TrimSuffix(p.Title, ": ")))
		}
		t.AppendHeader(header)

		configs := make([]table.ColumnConfig, 0, len(header))
		for i := 3; i <= len(header); i++ {
			configs = append(configs, table.ColumnConfig{Number: i, Align: text.AlignRight})
		}
		t.SetColumnConfigs(configs)

		for i := start; i < len(series); i++ {
			row := table.Row{i, series[i].Time().Format("2006-01-02 15:04"), model.FormatNumber(series[i].Close, 2)}
			for _, item := range indicator.TooltipAt(series, res, i, indicator.TooltipOptions{Placeholder: placeholder}) {
				row = append(row, item.Value)
			}
			t.AppendRow(row)
		}
		t.Render()
		return nil
	},
}

// loadSeries reads bars from --input, or from --db for --symbol.
func loadSeries(cmd *cobra.Command) (model.Series, error) {
	input, _ := cmd.Flags().GetString("input")
	if input != "" {
		return barsource.Load(input)
	}
	symbol, _ := cmd.Flags().GetString("symbol")
	if symbol == "" {
		return nil, errors.New("either --input or --symbol is required")
	}
	reader, err := openReader(cmd)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.ReadTail(context.Background(), symbol, 0)
}

func openReader(cmd *cobra.Command) (*sqlitestore.Reader, error) {
	path, _ := cmd.Flags().GetString("db")
	return sqlitestore.NewReader(path)
}
