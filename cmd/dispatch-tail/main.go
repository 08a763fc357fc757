package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/searchandrescuegg/medilocator/internal/pulsar"
)

func main() {
	var (
		pulsarURL    = flag.String("url", "pulsar://localhost:6650", "Pulsar service URL")
		topic        = flag.String("topic", "public/medilocator/dispatches", "Topic to read dispatch events from")
		subscription = flag.String("subscription", "dispatch-tail", "Subscription name")
	)
	flag.Parse()

	client, err := pulsar.NewSubscriber(*pulsarURL, *topic, *subscription)
	if err != nil {
		log.Fatalf("Failed to create Pulsar consumer: %v", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Waiting for dispatch events on %s\n", *topic)

	for {
		event, err := client.ReceiveDispatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			log.Printf("Failed to receive dispatch event: %v", err)
			continue
		}

		jsonBytes, err := json.MarshalIndent(event, "", "  ")
		if err != nil {
			log.Printf("Failed to marshal dispatch event: %v", err)
			continue
		}
		fmt.Println(string(jsonBytes))
	}
}
