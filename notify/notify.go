package notify

import (
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/EasyLink2023/liquiKart-perfume-backend/models"
)

// Queue and exchange wiring. The delayed exchange needs the
// rabbitmq_delayed_message_exchange plugin; when it is missing the
// payment-check reminders are skipped with a warning at startup.
type Config struct {
	URL            string
	OrderExchange  string
	OrderQueue     string
	DelayExchange  string
	DeadLetterName string
	MaxPriority    int
}

type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config

	delayedOK bool
}

// OrderEvent is the message body published on every order status change.
type OrderEvent struct {
	OrderID     uint   `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	Total       string `json:"total_amount"`
	OccurredAt  string `json:"occurred_at"`
}

func New(cfg Config) (*Publisher, error) {
	if cfg.OrderExchange == "" {
		cfg.OrderExchange = "order_events"
	}
	if cfg.OrderQueue == "" {
		cfg.OrderQueue = "order_events_queue"
	}
	if cfg.DelayExchange == "" {
		cfg.DelayExchange = "payment_check_delay"
	}
	if cfg.DeadLetterName == "" {
		cfg.DeadLetterName = "order_events_dead"
	}
	if cfg.MaxPriority == 0 {
		cfg.MaxPriority = 10
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	p := &Publisher{conn: conn, channel: ch, cfg: cfg}
	if err := p.setupQueues(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) setupQueues() error {
	if err := p.channel.ExchangeDeclare(
		p.cfg.OrderExchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	if err := p.channel.ExchangeDeclare(
		p.cfg.DeadLetterName+"_exchange",
		"direct",
		true, false, false, false,
		nil,
	); err != nil {
		return err
	}
	if _, err := p.channel.QueueDeclare(
		p.cfg.DeadLetterName,
		true, false, false, false,
		amqp.Table{"x-queue-type": "classic"},
	); err != nil {
		return err
	}
	if err := p.channel.QueueBind(
		p.cfg.DeadLetterName, "", p.cfg.DeadLetterName+"_exchange", false, nil,
	); err != nil {
		return err
	}

	if _, err := p.channel.QueueDeclare(
		p.cfg.OrderQueue,
		true, false, false, false,
		amqp.Table{
			"x-max-priority":            int32(p.cfg.MaxPriority),
			"x-dead-letter-exchange":    p.cfg.DeadLetterName + "_exchange",
			"x-dead-letter-routing-key": p.cfg.DeadLetterName,
		},
	); err != nil {
		return err
	}
	if err := p.channel.QueueBind(
		p.cfg.OrderQueue, "", p.cfg.OrderExchange, false, nil,
	); err != nil {
		return err
	}

	if err := p.channel.ExchangeDeclare(
		p.cfg.DelayExchange,
		"x-delayed-message",
		true, false, false, false,
		amqp.Table{"x-delayed-type": "fanout"},
	); err != nil {
		log.Printf("notify: delayed exchange unavailable, payment checks disabled: %v", err)
	} else {
		p.delayedOK = true
	}
	return nil
}

// OrderStatusChanged publishes a status-change event. Cancellations go out
// at a higher priority so downstream consumers handle them before routine
// fulfilment updates.
func (p *Publisher) OrderStatusChanged(order *models.Order, status models.OrderStatus) {
	ev := OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(status),
		Total:       order.TotalAmount.StringFixed(2),
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("notify: marshal order event: %v", err)
		return
	}

	priority := uint8(5)
	if status == models.OrderStatusCancelled {
		priority = 8
	}

	if err := p.channel.Publish(
		p.cfg.OrderExchange, "", false, false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			ContentType:  "application/json",
			Body:         body,
			Priority:     priority,
		},
	); err != nil {
		log.Printf("notify: publish order %d event: %v", order.ID, err)
	}
}

// SchedulePaymentCheck enqueues a delayed reminder to re-check a pending
// gateway payment. No-op when the delayed exchange plugin is absent.
func (p *Publisher) SchedulePaymentCheck(orderID uint, delay time.Duration) {
	if !p.delayedOK {
		return
	}
	body, _ := json.Marshal(map[string]interface{}{"order_id": orderID, "check": "payment"})
	if err := p.channel.Publish(
		p.cfg.DelayExchange, "", false, false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			ContentType:  "application/json",
			Body:         body,
			Headers:      amqp.Table{"x-delay": delay.Milliseconds()},
		},
	); err != nil {
		log.Printf("notify: schedule payment check for order %d: %v", orderID, err)
	}
}

func (p *Publisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
