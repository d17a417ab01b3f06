package main

import (
	"ctchen222/passplay/internal/logger"
	"ctchen222/passplay/internal/terminal"
	"ctchen222/passplay/internal/version"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/gdamore/tcell/v2"
)

func main() {
	showVersion := flag.Bool("version", false, "print the version and exit")
	logPath := flag.String("log", "", "append debug logs to this file")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// The screen owns stdout, so logs only go to a file when asked for.
	var logOut io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	logger.Init(logOut, slog.LevelDebug)

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("failed to create screen: %v", err)
	}
	if err := screen.Init(); err != nil {
		log.Fatalf("failed to initialize screen: %v", err)
	}

	err = terminal.New(screen, version.String()).Run()
	screen.Fini()
	if err != nil {
		log.Fatalf("terminal: %v", err)
	}
}
