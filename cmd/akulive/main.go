package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/akulearn/akulive/internal/config"
	"github.com/akulearn/akulive/internal/rtclient"
	"github.com/akulearn/akulive/internal/watcher"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file (json, toml or yaml)")
	student := flag.String("student", "", "student id, overrides config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	if *student != "" {
		cfg.StudentID = *student
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client := rtclient.New(cfg.StudentID, cfg.ClientOptions(logger)...)
	w := watcher.New(client, os.Stdout,
		watcher.WithTopics(cfg.Topics...),
		watcher.WithColor(cfg.Color),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer w.Stop()

	// команды из консоли, по строке
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			err := w.HandleCommand(sc.Text())
			if errors.Is(err, watcher.ErrQuit) {
				break
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
		}
		// EOF или quit
		stop()
	}()

	logger.Info("running, type help for commands, Ctrl+C to stop", "student_id", cfg.StudentID)

	<-ctx.Done()
}
