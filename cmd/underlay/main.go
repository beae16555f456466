package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/underlay-sh/underlay/internal/app"
	"github.com/underlay-sh/underlay/internal/config"
	"github.com/underlay-sh/underlay/internal/output"
)

func main() {
	startPath := flag.String("path", "", "Directory to display (default: desktop, falling back to home)")
	flag.Parse()

	mgr := config.NewManager()
	if err := mgr.Load(); err != nil {
		log.Printf("running with default configuration: %v", err)
	}
	cfg := mgr.Get()
	if *startPath != "" {
		cfg.StartPath = *startPath
	}

	a := app.New(cfg, output.LogCompositor{})
	go a.Run()
	defer a.Close()

	log.Printf("underlay: displaying %s", a.Location())

	// The compositor and widget bindings feed a.Send in production; until
	// they connect, exit cleanly on SIGINT/SIGTERM.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-a.Forwarded():
			// Widget layer's concern; drain so the queue never fills
		case s := <-sig:
			log.Printf("underlay: received %v, shutting down", s)
			return
		}
	}
}
