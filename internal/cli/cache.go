package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/cmscope/internal/wire"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Work with distributed cache refreshes",
}

var cacheListenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Apply and print cache refreshes from other servers",
	Long: `Subscribe to the cache refresh channel and apply every refresh sent by another
server to this process's caches. Runs until interrupted. Requires Redis to be
enabled in config.json or with CMSCOPE_REDIS.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := wire.Get()
		if err != nil {
			return err
		}
		if !c.Config.Redis.Enabled {
			return fmt.Errorf("redis is not enabled\nHint: set redis.enabled in config.json or CMSCOPE_REDIS=host:port")
		}

		ctx, stop := signal.NotifyContext(NewContext(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Listening on %s as %s (Ctrl-C to stop)\n", c.Config.Redis.Channel, c.Broadcaster.Origin())
		if err := c.Refresher.Listen(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		if ctx.Err() == context.Canceled {
			fmt.Println("Stopped.")
		}
		return nil
	},
}

// CacheCmd returns the cache command with all subcommands attached.
func CacheCmd() *cobra.Command {
	cacheCmd.AddCommand(cacheListenCmd)
	return cacheCmd
}
