package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sessamekesh/gateway-client/pkg/config"
	"github.com/sessamekesh/gateway-client/pkg/gateway"
	"github.com/sessamekesh/gateway-client/pkg/metrics"
	"go.uber.org/zap"
)

type Globals struct {
	Config     string        `help:"Config file (yaml, json or toml). Without one a local Register on 127.0.0.1:1236 is used." type:"path" env:"GATEWAYCLIENT_CONFIG"`
	Connection string        `help:"Named connection from the config file." short:"c"`
	Register   []string      `help:"Register addresses for an ad-hoc connection, overrides --config." sep:","`
	SecretKey  string        `help:"Secret key for an ad-hoc connection." env:"GATEWAYCLIENT_SECRET_KEY"`
	Timeout    time.Duration `help:"Deadline for each request." default:"5s"`
}

// Session is what every subcommand runs against.
type Session struct {
	ctx      context.Context
	timeout  time.Duration
	conn     gateway.Operations
	registry *gateway.Registry
	promReg  *prometheus.Registry
	log      *zap.Logger
	out      io.Writer
}

func (g *Globals) open(ctx context.Context, logger *zap.Logger) (*Session, error) {
	promReg := prometheus.NewRegistry()
	m, err := metrics.New(promReg)
	if err != nil {
		return nil, err
	}

	file := config.DefaultFile()
	if g.Config != "" {
		if file, err = config.Load(g.Config); err != nil {
			return nil, err
		}
	}
	registry := gateway.CreateRegistry(gateway.RegistryParams{
		Config:  file,
		Metrics: m,
		Logger:  logger,
	})

	var conn *gateway.Connection
	if len(g.Register) > 0 {
		conn, err = registry.ConnectionFromOptions(map[string]any{
			"register_address": g.Register,
			"secret_key":       g.SecretKey,
		})
	} else {
		conn, err = registry.Connection(g.Connection)
	}
	if err != nil {
		registry.Close()
		return nil, err
	}

	return &Session{
		ctx:      ctx,
		timeout:  g.Timeout,
		conn:     conn,
		registry: registry,
		promReg:  promReg,
		log:      logger,
		out:      os.Stdout,
	}, nil
}

func (s *Session) close() {
	if s.registry != nil {
		s.registry.Close()
	}
}

// request bounds one command by the --timeout deadline.
func (s *Session) request() (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(s.ctx)
	}
	return context.WithTimeout(s.ctx, s.timeout)
}

func (s *Session) println(a ...any) {
	fmt.Fprintln(s.out, a...)
}

func (s *Session) printList(items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(s.out, strings.Join(items, "\n"))
}
