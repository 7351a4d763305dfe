package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/cortexdash/internal/types"
	"github.com/user/cortexdash/pkg/cortexapi"
)

func init() {
	rootCmd.AddCommand(memoriesCmd, projectsCmd, statusCmd)
	memoriesCmd.AddCommand(memoriesListCmd, memoriesShowCmd, memoriesStatsCmd, memoriesSearchCmd, memoriesDeleteCmd, memoriesTagsCmd, memoriesTypesCmd)

	f := memoriesListCmd.Flags()
	f.String("type", "", "only this memory type")
	f.String("status", "", "only this status")
	f.StringSlice("tags", nil, "only memories with any of these tags")
	f.String("search", "", "substring match on content")
	f.Int("min-importance", -1, "minimum importance score")
	f.Int("max-importance", -1, "maximum importance score")
	f.String("sort", "", "created_at, last_accessed, importance_score or access_count")
	f.String("order", "", "asc or desc")
	f.Int("limit", 50, "page size")
	f.Int("offset", 0, "page offset")

	memoriesSearchCmd.Flags().Int("limit", 20, "maximum results")
}

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "Browse a project's memories",
}

var memoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer setupLogging(cfg, true).Close()

		f := cmd.Flags()
		filter := cortexapi.Filter{}
		filter.Type, _ = f.GetString("type")
		filter.Status, _ = f.GetString("status")
		filter.Tags, _ = f.GetStringSlice("tags")
		filter.Search, _ = f.GetString("search")
		filter.Limit, _ = f.GetInt("limit")
		filter.Offset, _ = f.GetInt("offset")
		if v, _ := f.GetInt("min-importance"); v >= 0 {
			filter.MinImportance = &v
		}
		if v, _ := f.GetInt("max-importance"); v >= 0 {
			filter.MaxImportance = &v
		}
		by, _ := f.GetString("sort")
		order, _ := f.GetString("order")
		if by == "" {
			by = cfg.Sort.By
		}
		if order == "" {
			order = cfg.Sort.Order
		}
		filter.Sort = types.ParseSort(by, order)

		records, err := newClient(cfg).ListMemories(cmd.Context(), cfg.Project, filter)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No memories found.")
			return nil
		}
		printRecords(os.Stdout, records)
		return nil
	},
}

var memoriesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one memory in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer setupLogging(cfg, true).Close()

		r, err := newClient(cfg).GetRecord(cmd.Context(), cfg.Project, types.RecordID(args[0]))
		if err != nil {
			return err
		}
		w := newTable(os.Stdout)
		fmt.Fprintf(w, "ID\t%s\n", r.ID)
		fmt.Fprintf(w, "Type\t%s\n", r.Type)
		fmt.Fprintf(w, "Status\t%s\n", r.Status)
		fmt.Fprintf(w, "Importance\t%d\n", r.ImportanceScore)
		fmt.Fprintf(w, "Accessed\t%d times\n", r.AccessCount)
		fmt.Fprintf(w, "Created\t%s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
		if r.LastAccessed != nil {
			fmt.Fprintf(w, "Last accessed\t%s\n", r.LastAccessed.Format("2006-01-02 15:04:05"))
		}
		if len(r.Tags) > 0 {
			fmt.Fprintf(w, "Tags\t%s\n", strings.Join(r.Tags, ", "))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%s\n", r.Content)
		if r.Context != "" {
			fmt.Printf("\nContext: %s\n", r.Context)
		}
		return nil
	},
}

var memoriesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise a project's memories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer setupLogging(cfg, true).Close()

		s, err := newClient(cfg).Stats(cmd.Context(), cfg.Project)
		if err != nil {
			return err
		}
		fmt.Printf("Total: %d memories, average importance %.1f, %d accesses\n", s.TotalCount, s.AvgImportance, s.TotalAccessCount)

		w := newTable(os.Stdout)
		printCounts(w, "TYPE", s.ByType)
		printCounts(w, "STATUS", s.ByStatus)
		if len(s.Tags) > 0 {
			fmt.Fprintln(w, "\nTAG\tCOUNT")
			for _, t := range s.Tags {
				fmt.Fprintf(w, "%s\t%d\n", t.Name, t.Count)
			}
		}
		return w.Flush()
	},
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "\n%s\tCOUNT\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%d\n", k, counts[k])
	}
}

var memoriesTagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List tags in use, for list --tags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer setupLogging(cfg, true).Close()

		tags, err := newClient(cfg).Tags(cmd.Context(), cfg.Project)
		if err != nil {
			return err
		}
		w := newTable(os.Stdout)
		fmt.Fprintln(w, "TAG\tCOUNT")
		for _, t := range tags {
			fmt.Fprintf(w, "%s\t%d\n", t.Name, t.Count)
		}
		return w.Flush()
	},
}

var memoriesTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List memory types, for list --type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer setupLogging(cfg, true).Close()

		dist, err := newClient(cfg).Types(cmd.Context(), cfg.Project)
		if err != nil {
			return err
		}
		w := newTable(os.Stdout)
		printCounts(w, "TYPE", dist)
		return w.Flush()
	},
}

var memoriesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer setupLogging(cfg, true).Close()

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := newClient(cfg).Search(cmd.Context(), cfg.Project, strings.Join(args, " "), limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		printRecords(os.Stdout, records)
		return nil
	},
}

var memoriesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer setupLogging(cfg, true).Close()

		if err := newClient(cfg).DeleteRecord(cmd.Context(), cfg.Project, types.RecordID(args[0])); err != nil {
			return err
		}
		fmt.Printf("Memory %s deleted.\n", args[0])
		return nil
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the memory databases the server knows about",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer setupLogging(cfg, true).Close()

		projects, err := newClient(cfg).ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No projects found.")
			return nil
		}

		w := newTable(os.Stdout)
		fmt.Fprintln(w, "NAME\tMEMORIES\tMODIFIED\tDATABASE")
		for _, p := range projects {
			name := p.Name
			if p.IsGlobal {
				name += " (global)"
			}
			if p.DBPath == cfg.Project {
				name = "* " + name
			}
			modified := "-"
			if p.LastModified != nil {
				modified = p.LastModified.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", name, p.MemoryCount, modified, p.DBPath)
		}
		return w.Flush()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that the server is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		defer setupLogging(cfg, true).Close()

		client := newClient(cfg)
		h, err := client.Health(cmd.Context())
		if err != nil {
			fmt.Printf("%s  %s\n", badgeOffline, client.BaseURL())
			return err
		}
		fmt.Printf("%s  %s (%s, %d live clients)\n", badgeLive, client.BaseURL(), h.Status, h.WebsocketConnections)
		if pid, err := readPID(); err == nil {
			fmt.Printf("watch running (PID %d)\n", pid)
		}
		return nil
	},
}
