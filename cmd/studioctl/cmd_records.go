package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reviewstudio/studio/pkg/models"
)

var (
	searchDataset string
	searchLimit   int
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy-search the embedded records",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var deviceCmd = &cobra.Command{
	Use:   "device <query>",
	Short: "Show the linked device view for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDevice,
}

func init() {
	searchCmd.Flags().StringVarP(&searchDataset, "dataset", "d", "", "Only search one dataset (510k, adr, gudid, recall)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "Hits shown per dataset")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	core, _, err := loadCore()
	if err != nil {
		return err
	}
	query := strings.Join(args, " ")

	results := models.SearchResults{}
	if searchDataset != "" {
		c, ok := models.ParseCollection(searchDataset)
		if !ok {
			return fmt.Errorf("unknown dataset %q", searchDataset)
		}
		results[c] = core.Search.Search(c, query)
	} else {
		results = core.Search.SearchAll(query)
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		return writeJSON(out, results)
	}
	for _, c := range models.Collections {
		hits, ok := results[c]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "%s (%d)\n", c, len(hits))
		for i, hit := range hits {
			if searchLimit > 0 && i >= searchLimit {
				break
			}
			fmt.Fprintf(out, "  %5.1f  %s\n", hit.Score, describe(c, hit.Record))
		}
	}
	return nil
}

// describe picks the identifying fields of a record for one-line output.
func describe(c models.Collection, r models.Record) string {
	var parts []string
	add := func(fields ...string) {
		for _, f := range fields {
			if v := r.String(f); v != "" {
				parts = append(parts, v)
			}
		}
	}
	switch c {
	case models.CollectionClearance:
		add("k_number", "device_name", "applicant")
	case models.CollectionAdverseEvent:
		add("adverse_event_id", "brand_name", "device_problem")
	case models.CollectionDeviceIdentifier:
		add("udi_di", "brand_name", "manufacturer_name")
	case models.CollectionRecall:
		add("recall_number", "firm_name", "recall_class")
	}
	add("product_code")
	return strings.Join(parts, " | ")
}

func runDevice(cmd *cobra.Command, args []string) error {
	core, _, err := loadCore()
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), core.Resolver.DeviceView(strings.Join(args, " ")))
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
