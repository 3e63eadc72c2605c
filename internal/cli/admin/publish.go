package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/talentboard/supportbot/internal/config"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/events"
)

// PublishCmd returns the publish command
func PublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <upsert|delete> <type> <id>",
		Short: "Publish a source change event",
		Long: `Publish a change event to the source change queue, as the job board does
when a document is written. A running server with SUPPORTBOT_AMQP_URL set picks it up.`,
		Args: cobra.ExactArgs(3),
		RunE: runPublish,
	}
	cmd.Flags().Duration("timeout", 10*time.Second, "Publish timeout")
	return cmd
}

func runPublish(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	event := events.ChangeEvent{
		Action:     events.Action(args[0]),
		SourceType: domain.SourceType(args[1]),
		SourceID:   args[2],
	}
	if err := event.Validate(); err != nil {
		return err
	}

	cfg, err := config.LoadWithoutDatabase()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasAMQP() {
		return fmt.Errorf("change events not configured: set %s_AMQP_URL", config.Prefix)
	}

	conn, err := events.Dial(ctx, cfg.AMQPURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := events.NewPublisher(conn, cfg.AMQPQueue).Publish(ctx, event); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %s %s/%s to %s\n", event.Action, event.SourceType, event.SourceID, cfg.AMQPQueue)
	return nil
}
