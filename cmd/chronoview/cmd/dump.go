package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hsterling/chronoview/pkg/message"
)

// dumpCmd represents the dump command.
var dumpCmd = &cobra.Command{
	Use:   "dump <file.cq4>",
	Short: "Print decoded messages",
	Long: `Print decoded messages in file order.

Example:
  chronoview dump trades.cq4 --start 100 --limit 20`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		start, _ := cmd.Flags().GetInt("start")
		limit, _ := cmd.Flags().GetInt("limit")

		svc, err := openService(cfg, args[0])
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Load(); err != nil {
			return err
		}

		msgs := svc.Messages()
		if limit > 0 {
			msgs = svc.Page(start, limit)
		} else if start > 0 {
			msgs = svc.Page(start, svc.Count())
		}

		for _, m := range msgs {
			printMessage(m)
		}
		return nil
	},
}

func printMessage(m *message.Message) {
	name := m.TypeName
	if name == "" {
		name = "-"
	}
	fmt.Printf("[%d] %s %s @ %d\n", m.Index, m.Kind, name, m.Offset)
	printFields(m.Fields, 1)
	for _, w := range m.Warnings {
		fmt.Printf("  ! %s\n", w)
	}
	if m.DecodeErr != nil {
		fmt.Printf("  ! decode error: %v\n", m.DecodeErr)
	}
}

func printFields(fields []message.Field, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range fields {
		name := f.Name
		if name == "" {
			name = "-"
		}
		if nested, ok := f.Value.(message.Nested); ok && nested.Msg != nil {
			fmt.Printf("%s%s: %s\n", indent, name, nested.Msg.TypeName)
			printFields(nested.Msg.Fields, depth+1)
			continue
		}
		fmt.Printf("%s%s: %s\n", indent, name, f.Value)
	}
}

func init() {
	dumpCmd.Flags().Int("start", 0, "First message position to print")
	dumpCmd.Flags().Int("limit", 0, "Maximum number of messages to print (0 = all)")
	rootCmd.AddCommand(dumpCmd)
}
