package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/wallasync/internal/ui"
	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

var (
	listArchived bool
	listStarred  bool
	listTag      string
	listSince    string
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "browse",
	Short:   "List cached entries",
	Long: `List entries from the local cache. Works offline; run 'wsync sync'
first to bring the cache up to date.

--since accepts a date ("2025-06-01"), an RFC 3339 timestamp, or natural
language like "2 days ago" or "last monday".`,
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

		ctx := cmd.Context()

		var entries []wallabag.Entry
		if listSince != "" {
			since, err := parseSince(listSince)
			if err != nil {
				fatal("%v", err)
			}
			entries, err = st.GetEntriesSince(ctx, since)
			if err != nil {
				fatal("failed to list entries: %v", err)
			}
		} else {
			entries, err = st.GetAllEntries(ctx)
			if err != nil {
				fatal("failed to list entries: %v", err)
			}
		}

		shown := 0
		for i := range entries {
			entry := &entries[i]
			if listArchived && !bool(entry.IsArchived) {
				continue
			}
			if listStarred && !bool(entry.IsStarred) {
				continue
			}
			if listTag != "" && !hasTag(entry, listTag) {
				continue
			}
			printEntry(entry)
			shown++
		}

		if shown == 0 {
			fmt.Println("No matching entries. Run 'wsync sync' to refresh the cache.")
			return
		}
		fmt.Printf("\n%d entries\n", shown)
	},
}

func parseSince(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, time.Now())
	if err == nil && r != nil {
		return r.Time, nil
	}
	return time.Time{}, fmt.Errorf("could not understand --since %q", s)
}

func hasTag(entry *wallabag.Entry, label string) bool {
	for _, tag := range entry.Tags {
		if tag.Label == label || tag.Slug == label {
			return true
		}
	}
	return false
}

func printEntry(entry *wallabag.Entry) {
	marker := " "
	if bool(entry.IsStarred) {
		marker = ui.RenderAccent("★")
	}
	title := "(untitled)"
	if entry.Title != nil && *entry.Title != "" {
		title = *entry.Title
	}
	fmt.Printf("%s %6d  %s\n", marker, entry.ID, title)

	detail := entry.CreatedAt.Local().Format("2006-01-02")
	if entry.DomainName != nil && *entry.DomainName != "" {
		detail += "  " + *entry.DomainName
	}
	if entry.ReadingTime > 0 {
		detail += fmt.Sprintf("  %dmin", entry.ReadingTime)
	}
	for _, tag := range entry.Tags {
		detail += "  #" + tag.Label
	}
	if bool(entry.IsArchived) {
		detail += "  [archived]"
	}
	fmt.Printf("          %s\n", ui.RenderDim(detail))
}

func init() {
	listCmd.Flags().BoolVar(&listArchived, "archived", false, "only archived entries")
	listCmd.Flags().BoolVar(&listStarred, "starred", false, "only starred entries")
	listCmd.Flags().StringVar(&listTag, "tag", "", "only entries carrying this tag")
	listCmd.Flags().StringVar(&listSince, "since", "", "only entries updated since this time")
	rootCmd.AddCommand(listCmd)
}
