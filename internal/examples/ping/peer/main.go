package main

import (
	"context"
	"errors"
	"flag"
	"github.com/DarthPestilane/easyduplex"
	"github.com/DarthPestilane/easyduplex/internal/examples/fixture"
	"github.com/DarthPestilane/easyduplex/internal/examples/ping/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.SetLevel(logrus.DebugLevel)
}

func main() {
	configPath := flag.String("config", "internal/examples/ping/peer/client.toml", "path to the TOML config")
	flag.Parse()

	cfg, err := easyduplex.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config err: %s", err)
	}
	opt, err := cfg.ClientOption()
	if err != nil {
		log.Fatalf("build client option err: %s", err)
	}
	opt.OnRunstateChange = func(old, new easyduplex.Runstate) {
		log.Infof("runstate: %s -> %s", old, new)
	}
	c := easyduplex.NewClient(opt)

	c.Use(fixture.RecoverMiddleware(log), fixture.LogMiddleware(log))
	c.AddRoute(common.MsgIdPing, func(ctx *easyduplex.Context) (*easyduplex.Message, error) {
		var ping common.Ping
		if err := ctx.Bind(&ping); err != nil {
			return nil, err
		}
		return ctx.Response(common.MsgIdPong, &common.Ping{Seq: ping.Seq, From: cfg.Name})
	})
	c.AddRoute(common.MsgIdPong, func(ctx *easyduplex.Context) (*easyduplex.Message, error) {
		return nil, nil
	})
	c.Router().PrintRoutes(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.Start(ctx, c); err != nil {
		log.Fatalf("start err: %s", err)
	}
	log.Infof("%s started", c)

	eg, ctx := errgroup.WithContext(ctx)
	if cfg.Role == easyduplex.RoleConnect {
		eg.Go(func() error {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for seq := 1; ; seq++ {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
				if err := c.Send(common.MsgIdPing, &common.Ping{Seq: seq, From: cfg.Name}); err != nil {
					return err
				}
			}
		})
	}
	eg.Go(func() error {
		// the session leaves Running when the peer goes away
		for {
			changed := c.RunstateChanged()
			if c.Runstate() != easyduplex.Running {
				return errors.New("session stopped")
			}
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
			}
		}
	})
	if err := eg.Wait(); err != nil {
		log.Warnf("%s", err)
	}

	if err := cfg.Stop(c); err != nil {
		log.Errorf("disconnect err: %s", err)
	}
	log.Infof("%s stopped", c)
}
