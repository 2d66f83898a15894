package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// 业务事件走 ExchangeName，处理失败的消息转入 DLQExchangeName，两者都是 topic 类型
const (
	ExchangeName    = "events"
	DLQExchangeName = "events.dlq"

	exchangeKind = "topic"
)

// dial 建连并打开 channel，顺带声明业务交换机和死信交换机；失败时已打开的资源会被关闭
func dial(url string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	for _, name := range []string{ExchangeName, DLQExchangeName} {
		if err := declareTopic(ch, name); err != nil {
			closeAll(ch, conn)
			return nil, nil, fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}
	return conn, ch, nil
}

// declareTopic 持久化、不自动删除
func declareTopic(ch *amqp091.Channel, name string) error {
	return ch.ExchangeDeclare(name, exchangeKind, true, false, false, false, nil)
}

func closeAll(ch *amqp091.Channel, conn *amqp091.Connection) {
	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}
