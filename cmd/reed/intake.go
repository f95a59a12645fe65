package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/reed/internal/repositories/sourcerecord"
	"github.com/Ramsey-B/reed/pkg/intake"
)

func newIntakeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "intake",
		Short: "Consume normalized source rows from Kafka",
		Long:  "Runs the intake consumer until interrupted, landing normalized source-row envelopes as immutable source records.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}

			service := intake.NewService(a.logger, sourcerecord.NewRepository(a.db, a.logger))
			consumer := intake.NewConsumer(intake.ConsumerConfig{
				Brokers:        a.cfg.KafkaBrokers,
				Topic:          a.cfg.KafkaIntakeTopic,
				ConsumerGroup:  a.cfg.KafkaConsumerGroup,
				CommitInterval: a.cfg.KafkaCommitInterval,
			}, a.logger, service.Handle)

			if err := consumer.Start(ctx); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case <-stop:
			case <-ctx.Done():
			}

			a.logger.WithContext(ctx).Info("Shutting down intake consumer")
			return consumer.Stop()
		},
	}
}
