// crewd CLI entry point
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/crewdlabs/crewd/internal/backend"
	"github.com/crewdlabs/crewd/internal/config"
	"github.com/crewdlabs/crewd/internal/store"
	"github.com/crewdlabs/crewd/internal/tui"
)

const defaultPort = 4140

var version = "dev"

func init() {
	if version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

func main() {
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serveFlag := flag.Bool("serve", false, "Run the backend daemon (no TUI)")
	portFlag := flag.Int("port", defaultPort, "Backend port")
	channelFlag := flag.String("channel", "team-alpha", "Channel to open")
	remoteFlag := flag.String("remote", "", "Connect to a remote backend (host:port)")
	tokenFlag := flag.String("token", "", "Auth token for the remote backend")
	flag.Parse()

	// All stderr diagnostics are also written to ~/.local/share/crewd/crewd.log.
	logger := config.NewLogger()
	defer logger.Close()

	if *versionFlag {
		fmt.Printf("crewd %s\n", version)
		return
	}

	// Remote TUI mode: no local store, no embedded server.
	if *remoteFlag != "" {
		c := backend.NewClient(0)
		c.SetBaseURL("http://" + *remoteFlag)
		c.SetAuthToken(*tokenFlag)
		if err := c.Health(); err != nil {
			fmt.Fprintf(os.Stderr, "cannot reach remote %s: %v\n", *remoteFlag, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Connected to remote backend on %s\n", *remoteFlag)
		runTUI(c, *channelFlag, logger)
		return
	}

	st, err := store.OpenStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	// Daemon-only mode: start HTTP server, no TUI.
	if *serveFlag {
		srv := backend.NewServer(st, logger)
		srv.SetVersion(version)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "backend: shutdown: %v\n", err)
			}
		}()

		if err := srv.Start(*portFlag); err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// TUI mode: reuse a running backend via its lockfile, else embed one.
	var c *backend.Client
	var embedded *backend.Server

	lf, lfErr := backend.ReadLockfile()
	if lfErr == nil && !backend.IsLockfileStale(lf) {
		c = backend.NewClient(lf.Port)
		c.SetAuthToken(lf.Token)
		if err := c.Health(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: backend on port %d not responding: %v\n", lf.Port, err)
			fmt.Fprintf(os.Stderr, "hint: kill the old process (pid %d) and restart crewd\n", lf.PID)
		} else {
			fmt.Fprintf(os.Stderr, "Connected to backend on port %d (pid %d)\n", lf.Port, lf.PID)
			if lf.Version != "" && lf.Version != version {
				fmt.Fprintf(os.Stderr, "note: daemon is crewd %s, this console is %s\n", lf.Version, version)
				logger.Warnf("version skew: daemon %s, console %s", lf.Version, version)
			}
		}
	} else {
		embedded = backend.NewServer(st, logger)
		embedded.SetQuiet(true)
		embedded.SetVersion(version)
		go func() {
			if err := embedded.Start(*portFlag); err != nil {
				fmt.Fprintf(os.Stderr, "embedded server error: %v\n", err)
			}
		}()
		// Port() blocks until Start() has bound the listener, so no race.
		c = backend.NewClient(embedded.Port())
		c.SetAuthToken(embedded.AuthToken())
	}

	runTUI(c, *channelFlag, logger)

	if embedded != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		if err := embedded.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "embedded server: shutdown: %v\n", err)
		}
	}
}

func runTUI(c *backend.Client, channel string, logger *config.Logger) {
	states, err := config.LoadChannelStates()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		states = map[string]config.ChannelState{}
	}
	if err := tui.Run(tui.InitialModel(c, version, channel, states, logger)); err != nil {
		fmt.Fprintf(os.Stderr, "crewd failed: %v\n", err)
		os.Exit(1)
	}
}
