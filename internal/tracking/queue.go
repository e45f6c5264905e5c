package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/maraichr/pipetrack/internal/pipelines"
)

const (
	// StepEventStream carries step-completion notifications from the compute
	// cluster back to the tracker.
	StepEventStream = "pipetrack:step_events"
	StepEventGroup  = "pipetrack-recorders"

	// JobStream carries step instructions from the rerun engine out to the
	// compute cluster.
	JobStream = "pipetrack:jobs"
)

// StepInstruction is the payload published for each accepted step of an
// authorized rerun. The compute workers consume it; the tracker never waits
// for the work to complete.
type StepInstruction struct {
	DatasetKey   uuid.UUID          `json:"dataset_key"`
	Attempt      int                `json:"attempt"`
	ExecutionKey int64              `json:"execution_key"`
	StepType     pipelines.StepType `json:"step_type"`
	Reason       string             `json:"reason,omitempty"`
}

// Producer enqueues step instructions to the Valkey jobs stream.
type Producer struct {
	client valkey.Client
}

func NewProducer(client valkey.Client) *Producer {
	return &Producer{client: client}
}

func (p *Producer) Publish(ctx context.Context, msg StepInstruction) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal instruction: %w", err)
	}

	resp := p.client.Do(ctx, p.client.B().Xadd().
		Key(JobStream).Id("*").
		FieldValue().FieldValue("data", string(data)).
		Build())
	if err := resp.Error(); err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	id, err := resp.ToString()
	if err != nil {
		return "", fmt.Errorf("parse xadd response: %w", err)
	}
	return id, nil
}

// Consumer reads step-completion events from the Valkey stream. Delivery is
// at-least-once; duplicates are absorbed downstream by the recorder's
// idempotence rules, so handlers only need to report success for the ACK.
type Consumer struct {
	client     valkey.Client
	consumerID string
	logger     *slog.Logger
}

func NewConsumer(client valkey.Client, consumerID string, logger *slog.Logger) *Consumer {
	return &Consumer{client: client, consumerID: consumerID, logger: logger}
}

// EnsureGroup creates the consumer group if it doesn't exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	resp := c.client.Do(ctx, c.client.B().XgroupCreate().
		Key(StepEventStream).Group(StepEventGroup).Id("0").Mkstream().Build())
	if err := resp.Error(); err != nil {
		// BUSYGROUP means group already exists — that's fine
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return fmt.Errorf("xgroup create: %w", err)
		}
	}
	return nil
}

// Consume blocks until an event is available, processes it via handler, and
// ACKs. On startup, it first drains any pending messages from a previous
// crash.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, pipelines.StepRecord) error) error {
	c.drainPending(ctx, handler)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp := c.client.Do(ctx, c.client.B().Xreadgroup().
			Group(StepEventGroup, c.consumerID).
			Count(1).Block(5000).
			Streams().Key(StepEventStream).Id(">").
			Build())

		if err := resp.Error(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Timeout is normal for BLOCK reads
			continue
		}

		results, err := resp.AsXRead()
		if err != nil {
			continue
		}

		for _, messages := range results {
			for _, msg := range messages {
				c.processMessage(ctx, msg, handler)
			}
		}
	}
}

// drainPending reads events previously delivered to this consumer but not
// ACKed.
func (c *Consumer) drainPending(ctx context.Context, handler func(context.Context, pipelines.StepRecord) error) {
	resp := c.client.Do(ctx, c.client.B().Xreadgroup().
		Group(StepEventGroup, c.consumerID).
		Count(10).
		Streams().Key(StepEventStream).Id("0").
		Build())

	if err := resp.Error(); err != nil {
		c.logger.Warn("drain pending failed", slog.String("error", err.Error()))
		return
	}

	results, err := resp.AsXRead()
	if err != nil {
		return
	}

	for _, messages := range results {
		for _, msg := range messages {
			c.logger.Info("recovering pending step event", slog.String("id", msg.ID))
			c.processMessage(ctx, msg, handler)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg valkey.XRangeEntry, handler func(context.Context, pipelines.StepRecord) error) {
	dataStr, ok := msg.FieldValues["data"]
	if !ok {
		c.logger.Warn("step event missing data field", slog.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return
	}

	var rec pipelines.StepRecord
	if err := json.Unmarshal([]byte(dataStr), &rec); err != nil {
		c.logger.Error("unmarshal step event", slog.String("error", err.Error()), slog.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return
	}

	if err := handler(ctx, rec); err != nil {
		c.logger.Error("handle step event", slog.String("error", err.Error()),
			slog.String("id", msg.ID),
			slog.String("dataset_key", rec.DatasetKey.String()),
			slog.String("step_type", string(rec.Type)))
	} else {
		c.ack(ctx, msg.ID)
	}
}

func (c *Consumer) ack(ctx context.Context, msgID string) {
	resp := c.client.Do(ctx, c.client.B().Xack().
		Key(StepEventStream).Group(StepEventGroup).Id(msgID).Build())
	if err := resp.Error(); err != nil {
		c.logger.Error("xack failed", slog.String("error", err.Error()), slog.String("id", msgID))
	}
}
