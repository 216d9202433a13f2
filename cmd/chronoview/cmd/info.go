package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// infoCmd represents the info command.
var infoCmd = &cobra.Command{
	Use:   "info <file.cq4>",
	Short: "Show queue header information and message counts",
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

		info := svc.QueueInfo()
		stats := svc.Stats()

		fmt.Printf("File:          %s\n", args[0])
		fmt.Printf("Start index:   %d\n", info.StartIndex)
		fmt.Printf("Roll cycle:    %s\n", info.RollCycle)
		fmt.Printf("Epoch:         %d\n", info.Epoch)
		fmt.Printf("Source id:     %d\n", info.SourceID)
		fmt.Printf("Messages:      %d\n", stats.Count)
		if stats.DecodeErrors > 0 {
			fmt.Printf("Decode errors: %d\n", stats.DecodeErrors)
		}
		for name, n := range stats.ByType {
			fmt.Printf("  %-24s %d\n", name, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
