package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Relay carries frames between gateway instances. Every instance
// consumes the topic with its own group ID so each one sees every
// frame, then re-delivers to its local subscribers; frames stamped
// with the local origin are skipped to avoid echo loops.
type Relay struct {
	origin   string
	producer *kafka.Writer
	consumer *kafka.Reader
	deliver  func(channelID string, frame []byte)
}

type relayEnvelope struct {
	Origin    string          `json:"origin"`
	ChannelID string          `json:"channelId"`
	Frame     json.RawMessage `json:"frame"`
}

func NewRelay(brokers []string, topic string, deliver func(channelID string, frame []byte)) *Relay {
	origin := uuid.NewString()

	producer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "gateway-relay-" + origin,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	r := &Relay{origin: origin, producer: producer, consumer: consumer, deliver: deliver}
	go r.consume()
	return r
}

// Publish ships a frame to the other instances. Fire-and-forget: the
// local fan-out already happened and a relay failure only affects
// remote subscribers, so it is logged and dropped.
func (r *Relay) Publish(channelID string, frame []byte) {
	env, err := json.Marshal(relayEnvelope{Origin: r.origin, ChannelID: channelID, Frame: frame})
	if err != nil {
		log.Printf("relay: marshal: %v", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.producer.WriteMessages(ctx, kafka.Message{Value: env, Time: time.Now()}); err != nil {
			log.Printf("relay: publish to %s failed: %v", channelID, err)
		}
	}()
}

func (r *Relay) consume() {
	defer r.consumer.Close()
	for {
		m, err := r.consumer.ReadMessage(context.Background())
		if err != nil {
			log.Printf("relay: consumer stopped: %v", err)
			return
		}

		var env relayEnvelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			log.Printf("relay: bad envelope: %v", err)
			continue
		}
		if env.Origin == r.origin {
			continue
		}
		r.deliver(env.ChannelID, env.Frame)
	}
}

func (r *Relay) Close() error {
	return r.producer.Close()
}
