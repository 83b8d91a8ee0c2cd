// Package amqp publishes measurements to a RabbitMQ queue as JSON documents.
package amqp

import (
  "context"
  "encoding/json"
  "time"

  "github.com/pkg/errors"
  amqp "github.com/rabbitmq/amqp091-go"
  "github.com/robertof/go-bluescale/body"
  "github.com/rs/zerolog/log"
)

const (
  DefaultQueue = "bluescale.measurements"
  contentType = "application/json"
)

var ErrNotConfirmed = errors.New("broker did not confirm the message")

// Message is the published document: the measurement plus the profile it was computed for.
type Message struct {
  body.Measurement
  Height float64 `json:"height"`
  Sex string `json:"sex"`
  Age float64 `json:"age"`
}

func NewMessage(m body.Measurement, p body.Profile) Message {
  m.Time = m.Time.UTC()

  return Message{
    Measurement: m,
    Height: p.Height,
    Sex: p.Sex.String(),
    Age: p.Age,
  }
}

// Publisher dials the broker for every measurement and waits for the publish to be confirmed.
type Publisher struct {
  url string
  queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
  if _, err := amqp.ParseURI(url); err != nil {
    return nil, errors.Wrap(err, "invalid AMQP url")
  }

  if queue == "" {
    queue = DefaultQueue
  }

  return &Publisher{url: url, queue: queue}, nil
}

func (p *Publisher) Insert(ctx context.Context, m body.Measurement, profile body.Profile) error {
  payload, err := json.Marshal(NewMessage(m, profile))
  if err != nil {
    return errors.Wrap(err, "failed to encode measurement")
  }

  conn, err := amqp.Dial(p.url)
  if err != nil {
    return errors.Wrap(err, "failed to dial AMQP broker")
  }

  defer conn.Close()

  ch, err := conn.Channel()
  if err != nil {
    return errors.Wrap(err, "failed to open AMQP channel")
  }

  defer ch.Close()

  if err := ch.Confirm(false); err != nil {
    return errors.Wrap(err, "failed to enable publisher confirms")
  }

  _, err = ch.QueueDeclare(
    p.queue, // name
    true,    // durable
    false,   // delete when unused
    false,   // exclusive
    false,   // no-wait
    nil,     // arguments
  )

  if err != nil {
    return errors.Wrapf(err, "failed to declare queue %q", p.queue)
  }

  confirm, err := ch.PublishWithDeferredConfirmWithContext(
    ctx,
    "",      // exchange
    p.queue, // routing key
    false,   // mandatory
    false,   // immediate
    amqp.Publishing{
      ContentType: contentType,
      DeliveryMode: amqp.Persistent,
      Timestamp: time.Now(),
      Body: payload,
    },
  )

  if err != nil {
    return errors.Wrapf(err, "failed to publish to %q", p.queue)
  }

  ok, err := confirm.WaitContext(ctx)

  if err != nil {
    return errors.Wrap(err, "failed waiting for publish confirmation")
  }

  if !ok {
    return ErrNotConfirmed
  }

  log.Debug().Str("Queue", p.queue).Msg("amqp: measurement published")

  return nil
}
