package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pushherd/internal/broadcast"
	"pushherd/internal/config"
	logx "pushherd/pkg/logx"
)

// runBroadcast is the one-shot CLI caller: flags in, one dispatch,
// aggregate counts out.
func runBroadcast(args []string) error {
	fs := flag.NewFlagSet("broadcast", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "path to config file (yaml or json)")
	title := fs.String("title", "", "notification title (required)")
	body := fs.String("body", "", "notification body (required)")
	url := fs.String("url", "/", "target url opened on click")
	filter := fs.String("filter", "all", "audience filter: all, free or premium")
	if err := fs.Parse(args); err != nil {
		return err
	}

	msg, err := broadcast.NewMessage(*title, *body, *url, *filter)
	if err != nil {
		return err
	}

	cfg, err := config.NewManager(*cfgPath).Load()
	if err != nil {
		return err
	}

	log := logx.NewConsole(cfg.Logging.Level)

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	disp, err := newDispatcher(cfg, st, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, derr := disp.Dispatch(ctx, msg)
	// Partial counts are still worth printing when the run was interrupted.
	fmt.Println(res.String())
	return derr
}
