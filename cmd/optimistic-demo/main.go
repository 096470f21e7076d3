// Package main provides optimistic-demo, a small CLI that drives the
// mutation engine end to end against an in-memory store so the wiring
// between patch, store, transaction, and queue can be exercised and
// observed without a UI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/mattsp1290/optimistic-engine/internal/logging"
	"github.com/mattsp1290/optimistic-engine/pkg/engine"
	"github.com/mattsp1290/optimistic-engine/pkg/mutation"
)

type command struct {
	name string
	desc string
	run  func(ctx context.Context, args []string) error
}

func main() {
	commands := buildCommands()

	args := os.Args[1:]
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		showHelp(commands)
		os.Exit(0)
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "optimistic-demo: unknown command %q\n", args[0])
		showHelp(commands)
		os.Exit(64)
	}

	if err := cmd.run(context.Background(), args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "optimistic-demo: %v\n", err)
		os.Exit(1)
	}
}

func buildCommands() map[string]*command {
	cmds := map[string]*command{
		"success":  {name: "success", desc: "run the success-path scenario", run: runSuccess},
		"conflict": {name: "conflict", desc: "run the conflicting-commit rebase scenario", run: runConflict},
	}
	cmds["help"] = &command{name: "help", desc: "show this help text", run: func(context.Context, []string) error {
		showHelp(cmds)
		return nil
	}}
	return cmds
}

func showHelp(cmds map[string]*command) {
	fmt.Println("optimistic-demo — exercises the mutation engine against an in-memory store")
	fmt.Println()
	fmt.Println("Usage: optimistic-demo <command>")
	fmt.Println()
	for _, c := range cmds {
		fmt.Printf("  %-10s %s\n", c.name, c.desc)
	}
}

func newObservedEngine() (*engine.Engine, func(), error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, nil, err
	}
	log := logging.NewZap(z)

	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)

	cfg := engine.DefaultConfig()
	e, err := engine.New(cfg,
		engine.WithLogger(log),
		engine.WithObservers(
			func(snaps []mutation.Snapshot) {
				for _, s := range snaps {
					log.Debug("queue snapshot", logging.String("label", s.Label), logging.String("status", s.Status.String()))
				}
			},
			func(s mutation.Snapshot) {
				log.Info("mutation succeeded", logging.String("label", s.Label), logging.Uint64("id", s.ID))
			},
			func(s mutation.Snapshot, err error) {
				log.Warn("mutation rolled back", logging.String("label", s.Label), logging.Uint64("id", s.ID), logging.Err(err))
			},
		),
	)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		e.Close()
		_ = tp.Shutdown(context.Background())
		_ = z.Sync()
	}
	return e, cleanup, nil
}

func runSuccess(ctx context.Context, _ []string) error {
	e, cleanup, err := newObservedEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	store := engine.NewStore(map[string]interface{}{
		"tasks": map[string]interface{}{"t1": map[string]interface{}{"title": "A", "status": "todo"}},
	})

	tx := e.CreateTransaction("rename", store)
	if err := tx.Set(func(d map[string]interface{}) {
		d["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["title"] = "B"
	}); err != nil {
		return err
	}
	tx.AssignMutation(func() error { return nil })
	if err := tx.Commit(); err != nil {
		return err
	}

	waitForIdle(e)
	fmt.Printf("final store: %#v\n", store.Read())
	return nil
}

func runConflict(ctx context.Context, _ []string) error {
	e, cleanup, err := newObservedEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	store := engine.NewStore(map[string]interface{}{
		"tasks": map[string]interface{}{"t1": map[string]interface{}{"title": "A", "status": "todo"}},
	})

	release := make(chan struct{})

	tx1 := e.CreateTransaction("m1", store)
	if err := tx1.Set(func(d map[string]interface{}) {
		d["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["title"] = "M1"
	}); err != nil {
		return err
	}
	tx1.AssignMutation(func() error { <-release; return nil })
	if err := tx1.Commit(); err != nil {
		return err
	}

	tx2 := e.CreateTransaction("m2", store)
	if err := tx2.Set(func(d map[string]interface{}) {
		d["tasks"].(map[string]interface{})["t1"].(map[string]interface{})["title"] = "M2"
	}); err != nil {
		return err
	}
	tx2.AssignMutation(func() error { return errors.New("server rejected m2") })
	if err := tx2.Commit(); err != nil {
		return err
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	waitForIdle(e)
	fmt.Printf("final store: %#v\n", store.Read())
	return nil
}

func waitForIdle(e *engine.Engine) {
	for {
		settled := true
		for _, s := range e.Queue().Snapshot() {
			if s.Status == mutation.Pending || s.Status == mutation.InFlight {
				settled = false
				break
			}
		}
		if settled {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
