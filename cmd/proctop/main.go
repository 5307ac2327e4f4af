package main

import (
	"context"
	"flag"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"proctop/internal/config"
	"proctop/internal/monitor"
	"proctop/internal/snapshot"
	"proctop/internal/system"
	"proctop/internal/ui"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("config: %v (using defaults)", err)
	}

	mgr := monitor.NewManager(snapshot.NewSource(), cfg)
	app := ui.NewApp(mgr, system.NewReader())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		// Interval and threshold edits apply live; a watch failure only
		// costs hot reload.
		_ = config.Watch(ctx, *configPath, mgr.Reconfigure)
	}()

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Printf("Error running program: %v", err)
		os.Exit(1)
	}
}
