package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nodestore/cql/balancer"
	"github.com/nodestore/cql/cluster"
	"github.com/nodestore/cql/conn"
	"github.com/nodestore/cql/monitor"
	"github.com/nodestore/cql/tui"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("cqlmon", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "cqlmon — cluster monitor and load-balancing driver client\n\nUsage:\n  cqlmon [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	seed := fs.String("seed", "", "seed node address, host:port (required)")
	username := fs.String("username", "", "username for PasswordAuthenticator (optional)")
	password := fs.String("password", "", "password for PasswordAuthenticator (optional)")
	httpAddr := fs.String("http", ":8088", "monitor HTTP server address (status + SSE events)")
	tickPeriod := fs.Duration("tick", 3*time.Second, "routing re-selection period")
	balancerName := fs.String("balancer", "round-robin", "load-balancing strategy: round-robin, latency-aware")
	watchInterval := fs.Duration("watch-interval", time.Second, "monitor snapshot publish interval")
	runTUI := fs.Bool("tui", false, "launch the terminal dashboard against the local monitor server")
	showVersion := fs.Bool("version", false, "show version and exit")

	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("cqlmon %s\n", version)
		return
	}

	if *seed == "" {
		fs.Usage()
		os.Exit(1)
	}

	log := logrus.NewEntry(logrus.StandardLogger())

	var creds *conn.Credentials
	if *username != "" {
		creds = &conn.Credentials{Username: *username, Password: *password}
	}

	sel, err := newSelector(*balancerName)
	if err != nil {
		log.Fatal(err)
	}

	if err := run(*seed, *httpAddr, *tickPeriod, *watchInterval, *runTUI, creds, sel, log); err != nil {
		log.Fatal(err)
	}
}

func newSelector(name string) (balancer.Selector, error) {
	switch name {
	case "round-robin", "":
		return balancer.NewRoundRobin(), nil
	case "latency-aware":
		return balancer.NewLatencyAware(), nil
	}
	return nil, fmt.Errorf("unsupported balancer: %s", name)
}

func run(
	seed, httpAddr string, tickPeriod, watchInterval time.Duration, runTUI bool,
	creds *conn.Credentials, sel balancer.Selector, log *logrus.Entry,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cluster.New(creds, log.WithField("component", "cluster"))
	if err := c.ConnectCluster(ctx, seed); err != nil {
		return fmt.Errorf("connect cluster: %w", err)
	}
	defer func() { _ = c.Close() }()
	c.SetLoadBalancing(sel, tickPeriod)

	broker := monitor.NewBroker[cluster.Info]()
	defer broker.Close()

	watcher := monitor.NewWatcher(c, broker, watchInterval)
	go watcher.Run(ctx)

	monSrv := monitor.New(c, broker, log.WithField("component", "monitor"))
	var lc net.ListenConfig
	httpLis, err := lc.Listen(ctx, "tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", httpAddr, err)
	}
	go func() {
		log.Printf("monitor server listening on %s", httpAddr)
		if err := monSrv.Serve(httpLis); err != nil {
			log.WithError(err).Warn("monitor serve stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = monSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("connected to cluster via seed %s", seed)

	if runTUI {
		target := "http://" + httpAddr
		if httpAddr[0] == ':' {
			target = "http://127.0.0.1" + httpAddr
		}
		p := tea.NewProgram(tui.New(target))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("tui: %w", err)
		}
		return nil
	}

	<-ctx.Done()
	return nil
}
