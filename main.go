// Command cqlmon-tui is a thin terminal client: it attaches the cluster
// dashboard to an already-running cqlmon monitor server (see
// cmd/cqlmon for the daemon that owns the cluster connection).
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nodestore/cql/tui"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("cqlmon-tui", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "cqlmon-tui — watch cluster status in real-time\n\nUsage:\n  cqlmon-tui [flags] <monitor-addr>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	showVersion := fs.Bool("version", false, "show version and exit")

	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("cqlmon-tui %s\n", version)
		return
	}

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}

	if err := watch(fs.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func watch(addr string) error {
	target := addr
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	p := tea.NewProgram(tui.New(target))
	_, err := p.Run()
	return err
}
