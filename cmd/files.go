package cmd

import (
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/projecteru2/rf4watch/types"
)

var filesCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Query the script's logs, screenshots and session data",
	}
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently modified files",
		Args:  cobra.NoArgs,
		RunE:  runFilesRecent,
	}
	recentCmd.Flags().String("category", "", "log, screenshot, config, session, template or other")
	recentCmd.Flags().Int("limit", 10, "maximum number of files") //nolint:mnd

	tailCmd := &cobra.Command{
		Use:   "tail LOG",
		Short: "Print the last lines of a log",
		Args:  cobra.ExactArgs(1),
		RunE:  runFilesTail,
	}
	tailCmd.Flags().IntP("lines", "n", 20, "number of lines") //nolint:mnd

	searchCmd := &cobra.Command{
		Use:   "search PATTERN",
		Short: "Search logs case-insensitively",
		Args:  cobra.ExactArgs(1),
		RunE:  runFilesSearch,
	}
	searchCmd.Flags().String("log", "", "search only this log")

	cmd.AddCommand(
		recentCmd,
		&cobra.Command{
			Use:   "stats",
			Short: "Summarize file counts and sizes per category and root",
			Args:  cobra.NoArgs,
			RunE:  runFilesStats,
		},
		tailCmd,
		searchCmd,
	)
	return cmd
}()

func runFilesRecent(cmd *cobra.Command, _ []string) error {
	m, err := initFiles()
	if err != nil {
		return err
	}
	category, _ := cmd.Flags().GetString("category")
	limit, _ := cmd.Flags().GetInt("limit")
	files := m.Recent(types.Category(category), limit)
	if len(files) == 0 {
		fmt.Println("No files found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROOT\tCATEGORY\tNAME\tSIZE\tMODIFIED")
	for _, f := range files {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.Root, f.Category, f.Name, formatSize(f.Size), formatTime(f.ModTime))
	}
	w.Flush() //nolint:errcheck,gosec
	return nil
}

func runFilesStats(_ *cobra.Command, _ []string) error {
	m, err := initFiles()
	if err != nil {
		return err
	}
	st := m.Statistics()
	fmt.Printf("Total: %d files, %s\n\n", st.TotalFiles, formatSize(st.TotalSize))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tFILES\tSIZE")
	for _, cat := range sortedKeys(st.Categories) {
		cs := st.Categories[cat]
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", cat, cs.Count, formatSize(cs.Size))
	}
	_, _ = fmt.Fprintln(w, "\nROOT\tFILES\tSIZE")
	for _, root := range sortedKeys(st.Roots) {
		rs := st.Roots[root]
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", root, rs.Files, formatSize(rs.Size))
	}
	w.Flush() //nolint:errcheck,gosec
	return nil
}

func runFilesTail(cmd *cobra.Command, args []string) error {
	m, err := initFiles()
	if err != nil {
		return err
	}
	n, _ := cmd.Flags().GetInt("lines")
	lines, err := m.ReadLogTail(args[0], n)
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Println(l)
	}
	return nil
}

func runFilesSearch(cmd *cobra.Command, args []string) error {
	m, err := initFiles()
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("log")
	matches, err := m.SearchLogs(args[0], name)
	for _, hit := range matches {
		fmt.Printf("%s:%d: %s\n", hit.File, hit.LineNumber, hit.Line)
	}
	if len(matches) == 0 && err == nil {
		fmt.Println("No matches.")
	}
	return err
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
