package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RetryQueue holds delayed messages until their expiration, then dead
// letters them back to the work queue.
func RetryQueue(queue string) string {
	return queue + ".retry"
}

// DeadQueue collects messages rejected without requeue.
func DeadQueue(queue string) string {
	return queue + ".dead"
}

// DeclareStageTopology declares the work queue with its retry and dead
// letter companions. Safe to call repeatedly.
func DeclareStageTopology(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(DeadQueue(queue), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead letter queue failed: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": DeadQueue(queue),
		},
	); err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}
	if _, err := ch.QueueDeclare(
		RetryQueue(queue),
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queue,
		},
	); err != nil {
		return fmt.Errorf("declare retry queue failed: %w", err)
	}
	return nil
}
