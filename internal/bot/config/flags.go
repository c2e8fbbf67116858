package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/debatekeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-t string   Telegram Bot API token
//	-s string   master secret for credential encryption
//	-q int      default quota for new credentials
//	-r int      default number of debate rounds
//	-a string   ops endpoint bind address
//	-p int      update long-poll window, seconds
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with the -c/-config file flags.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-t", "-s", "-q", "-r", "-a", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.TelegramToken, "t", config.TelegramToken, "telegram bot token")
	fs.StringVar(&config.MasterSecret, "s", config.MasterSecret, "master secret")
	fs.IntVar(&config.DefaultQuota, "q", config.DefaultQuota, "default quota for new credentials")
	fs.IntVar(&config.MaxRounds, "r", config.MaxRounds, "default number of debate rounds")
	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "ops endpoint address")

	pollTimeout := fs.Int("p", int(config.PollTimeout.Seconds()), "poll timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.PollTimeout = time.Duration(*pollTimeout) * time.Second
}
