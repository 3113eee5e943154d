package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashmay29/NL2SQL/internal/spider"
	"github.com/ashmay29/NL2SQL/internal/types"
)

var schemaCmd = &cobra.Command{
	Use:   "schema <schema.json>",
	Short: "Inspect an ingested schema file",
	Long: `schema loads a schema JSON file, stamps its fingerprint, and prints a
summary of the canonical view the ranker consumes.`,
	Args: cobra.ExactArgs(1),
	RunE: runSchema,
}

// loadSchemaFile reads and stamps a schema JSON file.
func loadSchemaFile(path string) (*types.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var schema types.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	if len(schema.Tables) == 0 {
		return nil, fmt.Errorf("schema file defines no tables")
	}

	return schema.Stamp(), nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	schema, err := loadSchemaFile(args[0])
	if err != nil {
		return err
	}

	canonical := spider.Convert(schema)

	fmt.Fprintf(cmd.OutOrStdout(), "Database:    %s\n", schema.Database)
	fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint: %s\n", schema.Version)
	fmt.Fprintf(cmd.OutOrStdout(), "Tables:      %d\n", len(canonical.TableNamesOriginal))
	fmt.Fprintf(cmd.OutOrStdout(), "Columns:     %d (incl. star sentinel)\n", len(canonical.ColumnNamesOriginal))
	fmt.Fprintf(cmd.OutOrStdout(), "PrimaryKeys: %d\n", len(canonical.PrimaryKeys))
	fmt.Fprintf(cmd.OutOrStdout(), "ForeignKeys: %d\n", len(canonical.ForeignKeys))

	for ti, table := range canonical.TableNamesOriginal {
		var cols []string

		for ci, ref := range canonical.ColumnNamesOriginal {
			if ref.TableIndex == ti {
				cols = append(cols, fmt.Sprintf("%s:%s", ref.Name, canonical.ColumnTypes[ci]))
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", table)

		for _, col := range cols {
			fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", col)
		}
	}

	return nil
}
