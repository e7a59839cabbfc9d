package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	"github.com/projecteru2/rf4watch/locator"
	"github.com/projecteru2/rf4watch/monitor"
	"github.com/projecteru2/rf4watch/process"
	"github.com/projecteru2/rf4watch/types"
)

const cpuSampleWindow = 500 * time.Millisecond

var statusCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the game process and the network once and print the combined status",
		RunE:  runStatus,
	}
	cmd.Flags().Bool("json", false, "print the full summary as JSON")
	cmd.Flags().Bool("resources", false, "also sample host CPU, memory, disk and network")
	return cmd
}()

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	services := newServices()
	defer shutdown(services)

	game, err := locator.Resolve[*monitor.Coordinator](services, svcGameState)
	if err != nil {
		return err
	}
	game.ForceRefresh(ctx)
	st := game.Status()

	var res *types.SystemResources
	if withRes, _ := cmd.Flags().GetBool("resources"); withRes {
		r, err := process.ReadSystemResources(ctx, conf.InstallRoot(), cpuSampleWindow)
		if err != nil {
			log.WithFunc("cmd.runStatus").Warnf(ctx, "system resources incomplete: %v", err)
		}
		res = &r
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(struct {
			monitor.Summary
			Resources *types.SystemResources `json:"resources,omitempty"`
		}{game.Summary(), res})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "STATUS\t%s\n", st.Overall)
	switch rec := st.Process.Snapshot; {
	case st.Process.Running && rec != nil:
		_, _ = fmt.Fprintf(w, "PROCESS\t%s (pid %d, %s)\n", rec.Name, st.Process.PID, rec.Status)
		_, _ = fmt.Fprintf(w, "STARTED\t%s\n", formatTime(rec.CreatedAt))
		if rec.MemoryBytes != nil {
			_, _ = fmt.Fprintf(w, "MEMORY\t%s\n", formatSize(int64(*rec.MemoryBytes))) //nolint:gosec
		}
	case st.Process.Running:
		_, _ = fmt.Fprintf(w, "PROCESS\tpid %d\n", st.Process.PID)
	default:
		_, _ = fmt.Fprintln(w, "PROCESS\tnot running")
	}
	c := st.Connection
	latency := "-"
	if c.AvgLatencyMS != nil {
		latency = fmt.Sprintf("%.1fms", *c.AvgLatencyMS)
	}
	_, _ = fmt.Fprintf(w, "NETWORK\tconnected=%t quality=%s latency=%s\n", c.Connected, c.Quality, latency)
	_, _ = fmt.Fprintf(w, "REACHABLE\t%s\n", joinOrDash(c.ReachableTargets))
	_, _ = fmt.Fprintf(w, "UNREACHABLE\t%s\n", joinOrDash(c.UnreachableTargets))
	_, _ = fmt.Fprintf(w, "GAME SERVERS\t%s\n", joinOrDash(c.GameServersReachable))
	if res != nil {
		printResources(w, res)
	}
	w.Flush() //nolint:errcheck,gosec
	return nil
}

func printResources(w io.Writer, res *types.SystemResources) {
	if res.CPUPercent != nil {
		_, _ = fmt.Fprintf(w, "HOST CPU\t%.1f%%\n", *res.CPUPercent)
	}
	if m := res.Memory; m != nil {
		_, _ = fmt.Fprintf(w, "HOST MEMORY\t%s / %s (%.1f%%)\n", formatSize(int64(m.Used)), formatSize(int64(m.Total)), m.UsedPercent) //nolint:gosec
	}
	if d := res.Disk; d != nil {
		_, _ = fmt.Fprintf(w, "DISK\t%s free of %s on %s\n", formatSize(int64(d.Free)), formatSize(int64(d.Total)), d.Path) //nolint:gosec
	}
	if n := res.Network; n != nil {
		_, _ = fmt.Fprintf(w, "NETWORK IO\tsent %s, received %s\n", formatSize(int64(n.BytesSent)), formatSize(int64(n.BytesRecv))) //nolint:gosec
	}
	if !res.BootTime.IsZero() {
		_, _ = fmt.Fprintf(w, "BOOTED\t%s\n", formatTime(res.BootTime))
	}
}

func joinOrDash(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ", ")
}
