package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/projecteru2/rf4watch/locator"
	"github.com/projecteru2/rf4watch/process"
	"github.com/projecteru2/rf4watch/types"
)

var psCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List every process matching the game's names, canonical first",
		Args:  cobra.NoArgs,
		RunE:  runPS,
	}
	cmd.Flags().Bool("json", false, "print candidates and metrics as JSON")
	return cmd
}()

type candidateView struct {
	process.Candidate
	Metrics *types.PerformanceMetrics `json:"metrics,omitempty"`
}

func runPS(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	services := newServices()
	defer shutdown(services)

	w, err := locator.Resolve[*process.Watcher](services, svcProcess)
	if err != nil {
		return err
	}
	cands, err := w.Candidates(ctx)
	if err != nil {
		return err
	}
	views := make([]candidateView, 0, len(cands))
	for _, c := range cands {
		v := candidateView{Candidate: c}
		if m, err := w.Metrics(ctx, c.PID); err == nil {
			v.Metrics = m
		}
		views = append(views, v)
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(views)
	}
	if len(views) == 0 {
		fmt.Println("No game processes found.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PID\tNAME\tSTARTED\tCPU\tMEMORY\tTHREADS")
	for _, v := range views {
		cpu, memory, threads := "-", "-", "-"
		if m := v.Metrics; m != nil {
			if m.CPUPercent != nil {
				cpu = fmt.Sprintf("%.1f%%", *m.CPUPercent)
			}
			if m.MemoryRSS != nil {
				memory = formatSize(int64(*m.MemoryRSS)) //nolint:gosec
			}
			if m.NumThreads != nil {
				threads = fmt.Sprint(*m.NumThreads)
			}
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", v.PID, v.Name, formatTime(v.CreatedAt), cpu, memory, threads)
	}
	tw.Flush() //nolint:errcheck,gosec
	return nil
}
