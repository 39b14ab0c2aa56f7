package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/services/events"
)

var errHelp = errors.New("help provided")

type subscriber interface {
	Subscribe(topic string) (<-chan events.Message, func(), error)
	Close() error
}

type commandLine struct {
	conf *core.Config
	out  io.Writer

	// opened lazily, only the commands that need them pay for the connection
	openDB         func() (*sql.DB, error)
	openSubscriber func() (subscriber, error)
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Hazira administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(cli.migrateCmd())
	root.AddCommand(cli.tokenCmd())
	root.AddCommand(cli.watchCmd())
	return root
}

// run executes `args` (program name included).
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 1 {
		root.SetArgs(args[1:])
	} else {
		root.SetArgs([]string{})
	}
	return root.Execute()
}

func (cli *commandLine) watchCmd() *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print domain events as they are published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := cli.openSubscriber()
			if err != nil {
				return err
			}
			defer func() { _ = sub.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return watch(ctx, sub, topic, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&topic, "topic", events.TopicAll, "subject to subscribe to (wildcards allowed)")
	return cmd
}

func watch(ctx context.Context, sub subscriber, topic string, out io.Writer) error {
	msgs, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			_, _ = fmt.Fprintf(out, "%s %s\n", msg.Topic, msg.Data)
		}
	}
}
