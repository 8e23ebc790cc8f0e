package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"evalgo.org/serverhub/internal/dataset"
	"evalgo.org/serverhub/internal/schema"
	"evalgo.org/serverhub/internal/storage"
)

var (
	// Query flags
	queryFilters  string
	queryRestrict []string
	queryOrderBy  string
	queryFormat   string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the server inventory",
	Long: `Execute attribute filter queries against the local database.

Filters are given as a JSON object mapping attribute names to filter
specifications, the same shape the HTTP API accepts.

Examples:
  serverhub query --filters '{"servertype": "vm"}'
  serverhub query --filters '{"state": {"any": ["online", "deploy"]}}' --restrict hostname,state
  serverhub query --filters '{}' --order-by hostname --format json`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryFilters, "filters", "{}", "filters as a JSON object")
	queryCmd.Flags().StringSliceVar(&queryRestrict, "restrict", nil, "attributes to project")
	queryCmd.Flags().StringVar(&queryOrderBy, "order-by", "", "attribute to sort on")
	queryCmd.Flags().StringVar(&queryFormat, "format", "table", "output format (table, json)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	var filters map[string]interface{}
	if err := json.Unmarshal([]byte(queryFilters), &filters); err != nil {
		return fmt.Errorf("invalid --filters: %w", err)
	}

	store, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	engine := dataset.New(store, schema.NewRegistry(store))
	records, err := engine.Query(cmd.Context(), dataset.QueryRequest{
		Filters:  filters,
		Restrict: queryRestrict,
		OrderBy:  queryOrderBy,
	})
	if err != nil {
		return err
	}

	if queryFormat == "json" {
		out, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	return printRecordTable(records)
}

func printRecordTable(records []dataset.Record) error {
	if len(records) == 0 {
		fmt.Println("No objects matched.")
		return nil
	}

	// Column order: identity fields first, then the rest alphabetically.
	seen := make(map[string]bool)
	var columns []string
	for _, name := range []string{"object_id", "hostname", "servertype", "project", "intern_ip", "segment"} {
		if _, ok := records[0][name]; ok {
			columns = append(columns, name)
			seen[name] = true
		}
	}
	var rest []string
	for _, rec := range records {
		for name := range rec {
			if !seen[name] {
				seen[name] = true
				rest = append(rest, name)
			}
		}
	}
	sort.Strings(rest)
	columns = append(columns, rest...)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for i, name := range columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, name)
	}
	fmt.Fprintln(w)
	for _, rec := range records {
		for i, name := range columns {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			if v, ok := rec[name]; ok && v != nil {
				fmt.Fprintf(w, "%v", v)
			} else {
				fmt.Fprint(w, "-")
			}
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d object(s)\n", len(records))
	return nil
}
