package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func NewEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "events",
		Short:   "Follow session events",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for ev := range apiClient.SubscribeEvents(ctx) {
				cmd.Printf("%s %s\n", bold("%s", ev.Name), string(ev.Data))
			}
			return nil
		},
	}
}
