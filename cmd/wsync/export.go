package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/wallasync/internal/store"
	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

var (
	exportFormat string
	exportOutput string
)

// exportedEntry is an entry with its annotations attached, which the
// cache keeps in a separate table.
type exportedEntry struct {
	wallabag.Entry
	Annotations []wallabag.Annotation `json:"annotations"`
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "browse",
	Short:   "Export cached entries with content and annotations",
	Long: `Write every cached entry, including article content and annotations,
to stdout or a file.

Formats: json (one array), jsonl (one entry per line), yaml.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("%v", err)
		}
		st, err := openStore(cfg)
		if err != nil {
			fatal("%v", err)
		}
		defer st.Close()

		var out io.Writer = os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				fatal("failed to create %s: %v", exportOutput, err)
			}
			defer f.Close()
			out = f
		}

		if err := exportEntries(cmd, st, out); err != nil {
			fatal("%v", err)
		}
		if exportOutput != "" {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", exportOutput)
		}
	},
}

func exportEntries(cmd *cobra.Command, st *store.Store, out io.Writer) error {
	ctx := cmd.Context()

	idSet, err := st.GetAllEntryIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	entries := make([]exportedEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := st.GetEntry(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load entry %d: %w", id, err)
		}
		anns, err := st.GetAnnotationsForEntry(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load annotations for entry %d: %w", id, err)
		}
		entries = append(entries, exportedEntry{Entry: *entry, Annotations: anns})
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "jsonl":
		enc := json.NewEncoder(out)
		for _, entry := range entries {
			if err := enc.Encode(entry); err != nil {
				return err
			}
		}
		return nil
	case "yaml":
		// Round-trip through JSON so field names and timestamp formats
		// match the other formats.
		data, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		return yaml.NewEncoder(out).Encode(generic)
	default:
		return fmt.Errorf("unknown format %q (want json, jsonl, or yaml)", exportFormat)
	}
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json, jsonl, or yaml")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
