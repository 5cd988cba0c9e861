package main

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list registered indicators with their default params and plots",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := newRegistry(cmd)
		if err != nil {
			return err
		}

		t := newTable(cmd)
		t.AppendHeader(table.Row{"name", "series", "precision", "defaults", "plots"})
		for _, name := range reg.List() {
			d, err := reg.Get(name)
			if err != nil {
				return err
			}
			keys := make([]string, len(d.Plots))
			for i, p := range d.Plots {
				keys[i] = p.Key
			}
			t.AppendRow(table.Row{d.Name, d.Series, d.Precision, d.DefaultParams.String(), strings.Join(keys, ", ")})
		}
		t.Render()
		return nil
	},
}
