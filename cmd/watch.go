package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	"github.com/projecteru2/rf4watch/configbridge"
	"github.com/projecteru2/rf4watch/connectivity"
	"github.com/projecteru2/rf4watch/eventbus"
	"github.com/projecteru2/rf4watch/fileactivity"
	"github.com/projecteru2/rf4watch/locator"
	"github.com/projecteru2/rf4watch/monitor"
	"github.com/projecteru2/rf4watch/process"
	"github.com/projecteru2/rf4watch/types"
)

var watchedEvents = []string{
	process.EventFound,
	process.EventLost,
	process.EventStatusChanged,
	connectivity.EventEstablished,
	connectivity.EventLost,
	connectivity.EventChanged,
	monitor.EventStatus,
	monitor.EventAlert,
	fileactivity.EventChanged,
	configbridge.EventChanged,
}

var watchCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Monitor the game, the network and the script's files until interrupted",
		RunE:  runWatch,
	}
	cmd.Flags().Bool("json", false, "print events as JSON lines (default when stdout is not a terminal)")
	cmd.Flags().Bool("no-files", false, "do not watch the data directories")
	cmd.Flags().Bool("no-config", false, "do not watch managed configuration files")
	cmd.Flags().Bool("verbose", false, "also print connection.changed samples")
	return cmd
}()

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	logger := log.WithFunc("cmd.runWatch")
	asJSON, _ := cmd.Flags().GetBool("json")
	noFiles, _ := cmd.Flags().GetBool("no-files")
	noConfig, _ := cmd.Flags().GetBool("no-config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	asJSON = asJSON || !isTerminal()

	services := newServices()
	defer shutdown(services)

	bus, err := locator.Resolve[*eventbus.Bus](services, svcBus)
	if err != nil {
		return err
	}
	out := &eventPrinter{json: asJSON}
	for _, name := range watchedEvents {
		if name == connectivity.EventChanged && !verbose {
			continue
		}
		bus.Subscribe(name, out.handle, 0)
	}

	game, err := locator.Resolve[*monitor.Coordinator](services, svcGameState)
	if err != nil {
		return err
	}
	if err := game.Start(ctx); err != nil {
		return fmt.Errorf("start game monitoring: %w", err)
	}

	if !noFiles {
		files, err := locator.Resolve[*fileactivity.Monitor](services, svcFiles)
		if err != nil {
			return err
		}
		if err := files.Start(ctx, nil, nil); err != nil {
			logger.Warnf(ctx, "file monitoring disabled: %v", err)
		}
	}

	if !noConfig {
		if err := watchConfigs(ctx, services); err != nil {
			logger.Warnf(ctx, "config watching disabled: %v", err)
		}
	}

	<-ctx.Done()
	logger.Info(ctx, "shutting down")
	return nil
}

// watchConfigs registers a watcher on every managed configuration. The bus
// subscription does the printing.
func watchConfigs(ctx context.Context, services *locator.Locator) error {
	bridge, err := locator.Resolve[*configbridge.Bridge](services, svcConfig)
	if err != nil {
		return err
	}
	names, err := bridge.ListAvailable()
	if err != nil {
		return err
	}
	logger := log.WithFunc("cmd.watchConfigs")
	for _, name := range names {
		if _, err := bridge.Watch(ctx, name, func(ctx context.Context, c configbridge.Change) error {
			logger.Debugf(ctx, "config %s %s", c.Name, c.Kind)
			return nil
		}); err != nil {
			return fmt.Errorf("watch %s: %w", name, err)
		}
	}
	return nil
}

// eventPrinter serializes output from concurrent publishers.
type eventPrinter struct {
	mu   sync.Mutex
	json bool
}

func (p *eventPrinter) handle(_ context.Context, ev eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		return json.NewEncoder(os.Stdout).Encode(ev)
	}
	_, err := fmt.Fprintf(os.Stdout, "%s  %-26s %s\n", ev.Timestamp.Local().Format(time.TimeOnly), ev.Name, describe(ev.Payload))
	return err
}

func describe(payload any) string {
	switch v := payload.(type) {
	case process.Event:
		return fmt.Sprintf("pid=%d name=%s status=%s", v.PID, v.Name, v.Status)
	case connectivity.Event:
		s := fmt.Sprintf("connected=%t quality=%s", v.Sample.Connected, v.Sample.Quality)
		if v.Link != "" {
			s += " link=" + v.Link
		}
		if v.Reason != "" {
			s += " reason=" + v.Reason
		}
		return s
	case types.CombinedStatus:
		return string(v.Overall)
	case types.Alert:
		return fmt.Sprintf("[%s] %s", v.Kind, v.Message)
	case types.FileChangeEvent:
		return fmt.Sprintf("%s %s %s", v.Kind, v.Category, v.Path)
	case configbridge.Change:
		return fmt.Sprintf("%s %s", v.Name, v.Kind)
	default:
		return fmt.Sprintf("%v", v)
	}
}
