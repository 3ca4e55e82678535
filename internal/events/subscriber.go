package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	pushdomain "fcm-push-backend/internal/push/domain"
	"fcm-push-backend/internal/push/usecase"

	"cloud.google.com/go/pubsub"
)

// PushEvent is the message shape external systems publish to trigger a
// notification. Everything beyond user/title/body rides in Data.
type PushEvent struct {
	User     string            `json:"user"`
	Users    []string          `json:"users,omitempty"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	RefType  string            `json:"ref_type,omitempty"`
	RefName  string            `json:"ref_name,omitempty"`
	ImageURL string            `json:"image_url,omitempty"`
}

// Subscriber consumes push events from a Pub/Sub subscription and feeds
// them into the notification service.
type Subscriber struct {
	client    *pubsub.Client
	service   usecase.PushService
	topicName string
	subName   string
}

// NewSubscriber creates a subscriber for the given project and topic.
func NewSubscriber(projectID, topicName string, service usecase.PushService) (*Subscriber, error) {
	ctx := context.Background()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &Subscriber{
		client:    client,
		service:   service,
		topicName: topicName,
		subName:   topicName + "-sub", // Convention: topic-sub
	}, nil
}

// Start ensures the subscription exists and blocks receiving messages
// until the context is cancelled.
func (s *Subscriber) Start(ctx context.Context) {
	log.Printf("[Events] starting subscriber on topic %s, subscription %s", s.topicName, s.subName)

	sub := s.client.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[Events] error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.client.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[Events] error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[Events] topic %s does not exist, cannot create subscription", s.topicName)
			return
		}

		sub, err = s.client.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[Events] failed to create subscription: %v", err)
			return
		}
		log.Printf("[Events] created subscription: %s", s.subName)
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[Events] error receiving messages: %v", err)
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var event PushEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Printf("[Events] failed to unmarshal push event: %v", err)
		return
	}

	n := pushdomain.Notification{
		Title:    event.Title,
		Body:     event.Body,
		Data:     event.Data,
		RefType:  event.RefType,
		RefName:  event.RefName,
		ImageURL: event.ImageURL,
	}

	var (
		res *pushdomain.AggregateResult
		err error
	)
	if len(event.Users) > 0 {
		res, err = s.service.SendToUsers(ctx, event.Users, n)
	} else {
		res, err = s.service.SendToUser(ctx, event.User, n)
	}
	if err != nil {
		log.Printf("[Events] dispatch failed for event %q: %v", event.Title, err)
		return
	}
	log.Printf("[Events] event %q dispatched: %d sent, %d failed", event.Title, res.Success, res.Failed)
}
