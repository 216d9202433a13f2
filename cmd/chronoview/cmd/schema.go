package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hsterling/chronoview/pkg/schema"
)

// schemaCmd represents the schema command.
var schemaCmd = &cobra.Command{
	Use:   "schema <path>",
	Short: "Parse class definitions and print the resulting schema",
	Long: `Parse a class-definition source file, a compiled class file, or a
directory of both, and print the classes and fields that would drive
decoding, along with the detected encoding.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}

		registry := schema.NewRegistry()
		if err := registry.Load(args[0], cfg.Encoding()); err != nil {
			return err
		}
		if err := registry.Freeze(); err != nil {
			return err
		}

		fmt.Printf("Encoding: %s\n", registry.Encoding())
		for _, name := range registry.Classes() {
			c, _ := registry.Query(name)
			if c.TemplateID != 0 {
				fmt.Printf("%s (template %d)\n", name, c.TemplateID)
			} else {
				fmt.Printf("%s\n", name)
			}
			for _, f := range c.Fields {
				fmt.Printf("  %-4d %-12s %s\n", f.ID, f.DeclaredType, f.Name)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
