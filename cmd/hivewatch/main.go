// hivewatch is the interactive query client for hivewatchd.
//
// With a terminal on stdin it opens a prompt with completion. Otherwise it
// reads one command per line from stdin, which makes it scriptable:
//
//	echo "cantidad 1min" | hivewatch -addr 127.0.0.1:9470
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/hivewatch/config"
	"github.com/xtxerr/hivewatch/internal/client"
	"github.com/xtxerr/hivewatch/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	addr := flag.String("addr", config.DefaultQueryListenAddress, "query server address")
	useTLS := flag.Bool("tls", false, "connect with TLS")
	insecure := flag.Bool("insecure", false, "skip TLS certificate verification")
	execute := flag.String("e", "", "run one command and exit")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level, _ := logging.ParseLevel("warn")
	if *verbose {
		level, _ = logging.ParseLevel("debug")
	}
	logging.InitWriter(os.Stderr, level, false)

	c := client.New(client.Config{Addr: *addr, TLS: *useTLS, TLSSkipVerify: *insecure})
	if err := c.Connect(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "hivewatch: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	sh := newShell(c, os.Stdout)
	c.OnDisconnect(func(err error) {
		fmt.Fprintf(os.Stderr, "\nconnection lost: %v\n", err)
	})

	switch {
	case *execute != "":
		if err := sh.execute(*execute); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case term.IsTerminal(int(os.Stdin.Fd())):
		runPrompt(sh, *addr)
	default:
		if failed := runScript(sh, bufio.NewScanner(os.Stdin)); failed > 0 {
			os.Exit(1)
		}
	}
}

func runPrompt(sh *shell, addr string) {
	fmt.Printf("hivewatch %s connected to %s. Type \"help\" for commands.\n", Version, addr)

	p := prompt.New(
		func(line string) {
			if err := sh.execute(line); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		},
		sh.complete,
		prompt.OptionTitle("hivewatch"),
		prompt.OptionPrefix("hivewatch> "),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && sh.exited
		}),
	)
	p.Run()
}

// runScript executes every non-empty line and returns how many failed.
func runScript(sh *shell, sc *bufio.Scanner) int {
	failed := 0
	for sc.Scan() && !sh.exited {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := sh.execute(line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %s: %v\n", line, err)
			failed++
		}
	}
	return failed
}
