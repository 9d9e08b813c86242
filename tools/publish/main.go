// Command publish sends notification files to RabbitMQ the way ironic's notifier does, wrapped
// in an oslo.messaging envelope, so a running exporter can be exercised without a conductor.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/openstack/ironic-prometheus-exporter/config"
	"github.com/openstack/ironic-prometheus-exporter/notifier"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	var (
		url      = flag.String("url", config.DefaultAMQP.URL, "RabbitMQ URL")
		exchange = flag.String("exchange", config.DefaultAMQP.Exchange, "Exchange to publish to")
		topic    = flag.String("topic", config.DefaultAMQP.Topic, "Notification topic")
		priority = flag.String("priority", "info", "Notification priority, appended to the topic as routing key")
		count    = flag.Int("count", 1, "Number of times each file is published")
		interval = flag.Duration("interval", 0, "Pause between two publications")
		timeout  = flag.Duration("timeout", 10*time.Second, "Per-message publish timeout")
	)
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatal("Usage: publish [flags] notification.json...")
	}

	conn, err := notifier.NewAmqpClient().DialConfig(*url, amqp.Config{Properties: amqp.NewConnectionProperties()})
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *url, err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("Failed to open channel: %v", err)
	}
	defer ch.Close()

	routingKey := *topic + "." + *priority
	for i := 0; i < *count; i++ {
		for _, file := range flag.Args() {
			raw, err := os.ReadFile(file)
			if err != nil {
				log.Fatal(err)
			}
			body, err := notifier.EncodeMessage(raw)
			if err != nil {
				log.Fatal(err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), *timeout)
			err = ch.PublishWithContext(ctx, *exchange, routingKey, false, false, amqp.Publishing{
				ContentType:     "application/json",
				ContentEncoding: "utf-8",
				MessageId:       uuid.NewString(),
				Timestamp:       time.Now(),
				Body:            body,
			})
			cancel()
			if err != nil {
				log.Fatalf("Failed to publish %s: %v", file, err)
			}
			log.Printf("Published %s to %s with routing key %s", file, *exchange, routingKey)
			if *interval > 0 {
				time.Sleep(*interval)
			}
		}
	}
}
