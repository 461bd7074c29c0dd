// Command mealctl signs a user into the meal API from a terminal. It walks
// the session through the terms and profile steps and can then follow the
// shared-photo feed.
//
//	mealctl -api http://localhost:8080/api/v1 -token $MEAL_TOKEN [-watch]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/authflow"
	"github.com/tbourn/go-meal-backend/internal/client"
	"github.com/tbourn/go-meal-backend/internal/sysutil"
)

func main() {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("mealctl", flag.ExitOnError)
	api := fs.String("api", sysutil.FirstNonEmpty(os.Getenv("MEAL_API"), "http://localhost:8080/api/v1"), "API base URL")
	token := fs.String("token", os.Getenv("MEAL_TOKEN"), "bearer token")
	delay := fs.Duration("recheck-delay", authflow.DefaultRecheckDelay, "wait before the server-side terms re-check")
	watch := fs.Bool("watch", false, "follow the shared-photo feed once ready")
	limit := fs.Int("limit", 10, "feed window size")
	verbose := fs.Bool("v", false, "debug logging")
	_ = fs.Parse(os.Args[1:])

	level := "warn"
	if *verbose {
		level = "debug"
	}
	sysutil.SetupLogger(os.Stderr, sysutil.LoggerOptions{Level: level, Pretty: true, Service: "mealctl"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *api, *token, *delay, *watch, *limit); err != nil {
		fmt.Fprintln(os.Stderr, "mealctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, api, token string, delay time.Duration, watch bool, limit int) error {
	if token == "" {
		return fmt.Errorf("no token: pass -token or set MEAL_TOKEN")
	}
	id, err := auth.PeekIdentity(token)
	if err != nil {
		return err
	}
	c := client.New(api, token)

	s := newSession(c, os.Stdin, os.Stdout)
	s.manager.RecheckDelay = delay
	if err := s.Run(ctx, id); err != nil {
		return err
	}
	log.Debug().Str("uid", id.UID).Str("state", s.manager.State().String()).Msg("session complete")

	if !watch {
		return nil
	}
	return s.Watch(ctx, limit)
}
