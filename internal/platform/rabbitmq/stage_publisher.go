package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"syllabussync/internal/model"
)

type StagePublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewStagePublisher(conn *amqp.Connection, queueName string) *StagePublisher {
	return &StagePublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *StagePublisher) Enqueue(ctx context.Context, job model.StageJob) error {
	return p.publish(ctx, p.queueName, job, 0)
}

// EnqueueAfter parks the job in the retry queue; the broker moves it to
// the work queue once delay has elapsed.
func (p *StagePublisher) EnqueueAfter(ctx context.Context, job model.StageJob, delay time.Duration) error {
	if delay <= 0 {
		return p.Enqueue(ctx, job)
	}
	return p.publish(ctx, RetryQueue(p.queueName), job, delay)
}

func (p *StagePublisher) publish(ctx context.Context, routingKey string, job model.StageJob, delay time.Duration) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareStageTopology(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal stage job failed: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         job.Stage,
	}
	if delay > 0 {
		msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	if err := ch.PublishWithContext(ctx, "", routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish stage job failed: %w", err)
	}
	return nil
}
