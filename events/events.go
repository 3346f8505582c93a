package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeBattlePaired   = "battle.paired"
	ExchangeBattleFinished = "battle.finished"

	ContentType = "application/json"

	defaultTimeout = 5 * time.Second
)

var exchanges = []string{
	ExchangeBattlePaired,
	ExchangeBattleFinished,
}

// BattlePairedEvent 匹配成功，Players[0] 先手
type BattlePairedEvent struct {
	MatchID   string    `json:"match_id"`
	Players   []string  `json:"players"`
	Names     []string  `json:"names"`
	CreatedAt time.Time `json:"created_at"`
}

// BattleFinishedEvent 对局结束；State 为 finished/declined/abandoned
type BattleFinishedEvent struct {
	MatchID    string    `json:"match_id"`
	Players    []string  `json:"players"`
	State      string    `json:"state"`
	Winner     string    `json:"winner,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Publisher 将对局事件发布到 RabbitMQ
type Publisher struct {
	ch amqpChannel
}

// NewPublisher 声明所需的 direct exchange
func NewPublisher(ch amqpChannel) (*Publisher, error) {
	for _, exchange := range exchanges {
		if err := ch.ExchangeDeclare(
			exchange,
			"direct",
			false,
			false,
			false,
			false,
			nil,
		); err != nil {
			return nil, fmt.Errorf("could not declare exchange %s: %w", exchange, err)
		}
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) PublishBattlePaired(ctx context.Context, event BattlePairedEvent) error {
	return p.publishEvent(ctx, ExchangeBattlePaired, event)
}

func (p *Publisher) PublishBattleFinished(ctx context.Context, event BattleFinishedEvent) error {
	return p.publishEvent(ctx, ExchangeBattleFinished, event)
}

func (p *Publisher) publishEvent(ctx context.Context, exchange string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	if err := p.ch.PublishWithContext(
		ctx,
		exchange,
		"",
		false,
		false,
		amqp091.Publishing{
			ContentType: ContentType,
			Timestamp:   time.Now(),
			Body:        data,
		},
	); err != nil {
		return fmt.Errorf("could not publish event to %s: %w", exchange, err)
	}
	return nil
}

// Dial 连接 RabbitMQ 并打开一个 channel；关闭时先关 channel 再关连接
func Dial(url string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("could not open RabbitMQ channel: %w", err)
	}
	return conn, ch, nil
}

// Noop 未配置 RABBITMQ_URL 时使用，丢弃所有事件
type Noop struct{}

func (Noop) PublishBattlePaired(context.Context, BattlePairedEvent) error { return nil }
func (Noop) PublishBattleFinished(context.Context, BattleFinishedEvent) error { return nil }
