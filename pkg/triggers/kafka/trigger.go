// Package kafka provides the Kafka topic-based trigger implementation.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/artistscloud/a9ents-sub000/pkg/triggers"
)

const (
	kafkaSessionTimeout    = 10 * time.Second
	kafkaHeartbeatInterval = 3 * time.Second
	kafkaRetryInterval     = 5 * time.Second
)

type Trigger struct {
	Topic         string
	ConsumerGroup string
	Brokers       []string
	GraphID       string
	consumer      sarama.ConsumerGroup
	callback      triggers.Callback
	logger        *slog.Logger
}

// NewTrigger creates a Kafka trigger from a trigger node's config. Brokers
// come from config or the KAFKA_BROKERS environment variable.
func NewTrigger(graphID string, config map[string]any, logger *slog.Logger) (*Trigger, error) {
	topic, ok := config["topic"].(string)
	if !ok || topic == "" {
		return nil, errors.New("kafka trigger topic is required")
	}

	consumerGroup, _ := config["consumerGroup"].(string)
	if consumerGroup == "" {
		consumerGroup = "a9ents-triggers-" + graphID
	}

	brokersStr, _ := config["brokers"].(string)
	if brokersStr == "" {
		brokersStr = os.Getenv("KAFKA_BROKERS")
		if brokersStr == "" {
			brokersStr = "localhost:9092"
		}
	}

	brokers := strings.Split(brokersStr, ",")
	for i, broker := range brokers {
		brokers[i] = strings.TrimSpace(broker)
	}

	return &Trigger{
		Topic:         topic,
		ConsumerGroup: consumerGroup,
		Brokers:       brokers,
		GraphID:       graphID,
		logger: logger.With(
			"module", "kafka_trigger",
			"topic", topic,
			"consumer_group", consumerGroup,
			"graph_id", graphID,
		),
	}, nil
}

func (t *Trigger) Start(ctx context.Context, callback triggers.Callback) error {
	t.logger.InfoContext(ctx, "Starting Kafka trigger")
	t.callback = callback

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Session.Timeout = kafkaSessionTimeout
	config.Consumer.Group.Heartbeat.Interval = kafkaHeartbeatInterval
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(t.Brokers, t.ConsumerGroup, config)
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}

	t.consumer = consumer

	go t.consuming(ctx)
	go t.monitorConsumerErrors(ctx)

	return nil
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping Kafka trigger")

	if t.consumer != nil {
		err := t.consumer.Close()
		if err != nil {
			t.logger.ErrorContext(ctx, "Error closing Kafka consumer", "error", err)

			return err
		}
	}

	return nil
}

func (t *Trigger) consuming(ctx context.Context) {
	handler := &consumerGroupHandler{trigger: t}

	for {
		select {
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "Kafka trigger context cancelled")

			return
		default:
			err := t.consumer.Consume(ctx, []string{t.Topic}, handler)
			if err != nil {
				t.logger.ErrorContext(ctx, "Kafka consumer error", "error", err)
				time.Sleep(kafkaRetryInterval)
			}
		}
	}
}

func (t *Trigger) monitorConsumerErrors(ctx context.Context) {
	for {
		select {
		case err := <-t.consumer.Errors():
			if err != nil {
				t.logger.ErrorContext(ctx, "Kafka consumer group error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

type consumerGroupHandler struct {
	trigger *Trigger
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.trigger.logger.InfoContext(session.Context(), "Kafka consumer group session started")

	return nil
}

func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.trigger.logger.InfoContext(session.Context(), "Kafka consumer group session ended")

	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	ctx := session.Context()

	for message := range claim.Messages() {
		h.trigger.logger.DebugContext(ctx, "Received Kafka message",
			"topic", message.Topic,
			"partition", message.Partition,
			"offset", message.Offset,
		)

		var messageData any

		if len(message.Value) > 0 {
			if err := json.Unmarshal(message.Value, &messageData); err != nil {
				messageData = map[string]any{"raw_message": string(message.Value)}
			}
		}

		headers := make(map[string]string)
		for _, header := range message.Headers {
			headers[string(header.Key)] = string(header.Value)
		}

		payload := map[string]any{
			"trigger":   "kafka",
			"topic":     message.Topic,
			"partition": message.Partition,
			"offset":    message.Offset,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"key":       string(message.Key),
			"message":   messageData,
			"headers":   headers,
		}

		go func(data map[string]any) {
			if err := h.trigger.callback(ctx, data); err != nil {
				h.trigger.logger.ErrorContext(ctx, "Error starting run for Kafka trigger", "error", err)
			}
		}(payload)

		session.MarkMessage(message, "")
	}

	return nil
}
