package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hsterling/chronoview/pkg/export"
)

// exportCmd represents the export command.
var exportCmd = &cobra.Command{
	Use:   "export <file.cq4>",
	Short: "Export decoded messages as CSV",
	Long: `Export decoded messages as CSV with flattened dot-notation columns.

Example:
  chronoview export trades.cq4 -o trades.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("output")

		svc, err := openService(cfg, args[0])
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Load(); err != nil {
			return err
		}

		w := os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := export.WriteCSV(w, svc.Messages()); err != nil {
			return err
		}
		if out != "" {
			fmt.Fprintf(os.Stderr, "Wrote %d messages to %s\n", svc.Count(), out)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
