package config

import (
	"flag"
	"os"
	"time"

	"github.com/goteamwork/roomsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-m string   mode: host or client
//	-s string   server base URL (client mode)
//	-l string   listen address (host mode)
//	-r int      push-channel reconnect delay in seconds
//	-n string   display name to register on startup
//
// Only the flags listed here are parsed; the rest of os.Args is filtered out
// via flagx.FilterArgs so other components' flags do not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-m", "-s", "-l", "-r", "-n"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	mode := fs.String("m", string(cfg.Mode), "mode: host or client")
	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "server base URL")
	fs.StringVar(&cfg.ListenAddr, "l", cfg.ListenAddr, "host listen address")
	fs.StringVar(&cfg.UserName, "n", cfg.UserName, "display name")
	reconnect := fs.Int("r", int(cfg.ReconnectDelay.Seconds()), "reconnect delay (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *mode == string(ModeHost) {
		cfg.Mode = ModeHost
	} else {
		cfg.Mode = ModeClient
	}
	cfg.ReconnectDelay = time.Duration(*reconnect) * time.Second
}
