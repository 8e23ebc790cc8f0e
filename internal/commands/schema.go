package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"evalgo.org/serverhub/internal/schema"
	"evalgo.org/serverhub/internal/storage"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the attribute schema",
	Long:  `Load and inspect attribute and servertype definitions`,
}

var schemaLoadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Load a schema definition from a yaml file",
	Long: `Load attributes, servertypes and IP ranges from a yaml seed file.

Existing definitions with the same names are updated in place; nothing is
deleted. The schema version is bumped once at the end so running servers
pick up the change on their next snapshot.

Examples:
  serverhub schema load schema.yaml
  serverhub schema load /etc/serverhub/schema.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runSchemaLoad,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the loaded schema",
	RunE:  runSchemaShow,
}

func init() {
	schemaCmd.AddCommand(schemaLoadCmd)
	schemaCmd.AddCommand(schemaShowCmd)
}

func runSchemaLoad(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	doc, err := schema.ParseSeed(data)
	if err != nil {
		return err
	}

	store, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if err := schema.ApplySeed(ctx, store, doc); err != nil {
		return fmt.Errorf("failed to apply seed: %w", err)
	}

	fmt.Printf("Loaded %d attributes, %d servertypes, %d ip ranges\n",
		len(doc.Attributes), len(doc.Servertypes), len(doc.IPRanges))
	return nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	store, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	snap, err := schema.NewRegistry(store).Snapshot(ctx)
	if err != nil {
		return err
	}

	servertypes := snap.Servertypes()
	sort.Slice(servertypes, func(i, j int) bool { return servertypes[i].Name < servertypes[j].Name })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "SERVERTYPE\tATTRIBUTE\tTYPE\tMULTI\tREQUIRED\tDEFAULT\n")
	for _, st := range servertypes {
		for _, sa := range st.Attributes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%s\n",
				st.Name, sa.Attribute.Name, sa.Attribute.Type,
				sa.Attribute.Multi, sa.Required, sa.Default)
		}
	}
	return w.Flush()
}
