package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// countCmd represents the count command.
var countCmd = &cobra.Command{
	Use:   "count <file.cq4>",
	Short: "Count messages in a queue file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		svc, err := openService(cfg, args[0])
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Load(); err != nil {
			return err
		}
		fmt.Println(svc.Count())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(countCmd)
}
