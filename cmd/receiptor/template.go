package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwrona/receiptor/internal/schema"
	"github.com/mwrona/receiptor/internal/templates"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Receipt template commands",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available receipt templates",
	RunE:  runTemplateList,
}

func init() {
	templateCmd.AddCommand(templateListCmd)
	rootCmd.AddCommand(templateCmd)
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	for _, id := range schema.IDs() {
		sch, err := schema.Lookup(id)
		if err != nil {
			return err
		}

		stages := 2
		if sch.Deferred {
			stages = 3
		}

		doc, err := templates.Load(sch.Document)
		if err != nil {
			return fmt.Errorf("template %s: %w", id, err)
		}

		fmt.Printf("%-12s %s (%d stages, %d byte document)\n", sch.ID, sch.DisplayName(), stages, len(doc))
	}
	return nil
}
