package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	units "github.com/docker/go-units"
	"github.com/moby/term"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/rf4watch/configbridge"
	"github.com/projecteru2/rf4watch/connectivity"
	"github.com/projecteru2/rf4watch/eventbus"
	"github.com/projecteru2/rf4watch/fileactivity"
	"github.com/projecteru2/rf4watch/locator"
	"github.com/projecteru2/rf4watch/monitor"
	"github.com/projecteru2/rf4watch/process"
)

// Locator names of the wired components.
const (
	svcBus          = "event_bus"
	svcProcess      = "process_watcher"
	svcConnectivity = "connectivity_probe"
	svcGameState    = "game_state"
	svcConfig       = "config_bridge"
	svcFiles        = "file_monitor"
)

const shutdownTimeout = 10 * time.Second

// newServices registers every component lazily. Dependencies resolve through
// the locator, so a command only builds what it touches.
func newServices() *locator.Locator {
	l := locator.New()
	l.RegisterFactory(svcBus, func() (any, error) {
		return eventbus.New(conf.EventHistorySize), nil
	})
	l.RegisterFactory(svcProcess, func() (any, error) {
		bus, err := locator.Resolve[*eventbus.Bus](l, svcBus)
		if err != nil {
			return nil, err
		}
		return process.New(conf.Process, process.SystemLister{}, bus), nil
	})
	l.RegisterFactory(svcConnectivity, func() (any, error) {
		bus, err := locator.Resolve[*eventbus.Bus](l, svcBus)
		if err != nil {
			return nil, err
		}
		return connectivity.New(conf.Connection, nil, bus), nil
	})
	l.RegisterFactory(svcGameState, func() (any, error) {
		bus, err := locator.Resolve[*eventbus.Bus](l, svcBus)
		if err != nil {
			return nil, err
		}
		w, err := locator.Resolve[*process.Watcher](l, svcProcess)
		if err != nil {
			return nil, err
		}
		p, err := locator.Resolve[*connectivity.Probe](l, svcConnectivity)
		if err != nil {
			return nil, err
		}
		return monitor.New(conf.Monitor, w, p, bus), nil
	})
	l.RegisterFactory(svcConfig, func() (any, error) {
		bus, err := locator.Resolve[*eventbus.Bus](l, svcBus)
		if err != nil {
			return nil, err
		}
		return configbridge.New(conf, bus)
	})
	l.RegisterFactory(svcFiles, func() (any, error) {
		bus, err := locator.Resolve[*eventbus.Bus](l, svcBus)
		if err != nil {
			return nil, err
		}
		return fileactivity.New(conf, bus)
	})
	return l
}

// shutdown stops everything the locator built, in reverse order.
func shutdown(l *locator.Locator) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := l.ShutdownAll(ctx); err != nil {
		log.WithFunc("cmd.shutdown").Errorf(ctx, err, "shutdown")
	}
}

func initBridge() (*locator.Locator, *configbridge.Bridge, error) {
	l := newServices()
	b, err := locator.Resolve[*configbridge.Bridge](l, svcConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("init config bridge: %w", err)
	}
	return l, b, nil
}

func initFiles() (*fileactivity.Monitor, error) {
	m, err := locator.Resolve[*fileactivity.Monitor](newServices(), svcFiles)
	if err != nil {
		return nil, fmt.Errorf("init file monitor: %w", err)
	}
	return m, nil
}

// isTerminal reports whether stdout is an interactive terminal.
func isTerminal() bool {
	_, ok := term.GetFdInfo(os.Stdout)
	return ok
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatSize(bytes int64) string {
	return units.HumanSize(float64(bytes))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
