package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/project"
	"github.com/procura-hq/procura/internal/resource/schema"
	"github.com/procura-hq/procura/internal/resource/store"
	"github.com/procura-hq/procura/internal/resource/template"
)

var schemaAccountFlag string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema inspection commands",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export <resource-type>",
	Short: "Export a schema as a JSON Schema document",
	Long: `Render a resource type's schema as a JSON Schema document for external
validators. Without --account the built-in system schema is exported;
with --account the tenant's live schema is loaded from the database.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := resource.ParseType(args[0])
		if err != nil {
			return err
		}

		var sc *schema.Schema
		if schemaAccountFlag == "" {
			sc = template.SystemSchema(t)
		} else {
			accountID, err := uuid.Parse(schemaAccountFlag)
			if err != nil {
				return fmt.Errorf("invalid account id %q: %w", schemaAccountFlag, err)
			}
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			sc, err = store.New(db, nil).LoadSchema(cmd.Context(), accountID, t)
			if err != nil {
				return err
			}
		}

		doc := project.Project(sc)
		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}

		color.New(color.FgCyan).Fprintf(os.Stderr, "# %s schema (%d fields)\n", t, len(doc.Properties))
		fmt.Println(string(raw))
		return nil
	},
}

func init() {
	schemaExportCmd.Flags().StringVar(&schemaAccountFlag, "account", "", "export a tenant's schema instead of the system schema")
	schemaCmd.AddCommand(schemaExportCmd)
}
