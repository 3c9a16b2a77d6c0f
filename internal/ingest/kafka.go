package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Consumer runs one reader per bus topic and feeds the ingester. Messages
// are delivered at-least-once; raw-latest upserts make reprocessing safe.
type Consumer struct {
	ingester *Ingester
	brokers  []string
	groupID  string
}

// NewConsumer builds a bus consumer over the given brokers.
func NewConsumer(in *Ingester, brokers []string, groupID string) *Consumer {
	return &Consumer{ingester: in, brokers: brokers, groupID: groupID}
}

// Run consumes all topics until the context is cancelled, then waits for
// the live-feed batcher to flush. Blocks.
func (c *Consumer) Run(ctx context.Context) {
	batcherCtx, stopBatcher := context.WithCancel(context.Background())
	go c.ingester.RunBatcher(batcherCtx)

	var wg sync.WaitGroup
	for _, topic := range Topics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.consumeTopic(ctx, topic)
		}()
	}
	wg.Wait()

	stopBatcher()
	c.ingester.WaitClosed()
	log.Info().Msg("Bus consumer stopped")
}

func (c *Consumer) consumeTopic(ctx context.Context, topic string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.brokers,
		GroupID:  c.groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	defer reader.Close()

	log.Info().Str("topic", topic).Strs("brokers", c.brokers).Msg("Consuming bus topic")
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Bus read failed; retrying")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		c.ingester.Ingest(ctx, topic, msg.Value)
	}
}
