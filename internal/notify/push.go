package notify

import (
	"context"
	"log"
	"os"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"
)

// Push fans alerts out to a Firebase Cloud Messaging topic, for a
// companion mobile dashboard. Like Telegram, it degrades to nil when the
// service account credentials file is absent.
type Push struct {
	client *messaging.Client
	topic  string
}

// NewPush initializes Firebase from credFile. Returns nil (not an error)
// when the file doesn't exist — push notifications are an optional
// surface, never a startup dependency.
func NewPush(credFile, topic string) *Push {
	if credFile == "" {
		credFile = "serviceAccountKey.json"
	}
	if _, err := os.Stat(credFile); os.IsNotExist(err) {
		log.Println("⚠️ FCM: credentials file not found. Push notifications disabled.")
		return nil
	}

	opt := option.WithCredentialsFile(credFile)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		log.Printf("⚠️ FCM: error initializing app: %v", err)
		return nil
	}
	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("⚠️ FCM: error getting messaging client: %v", err)
		return nil
	}

	log.Println("✅ FCM push service initialized")
	return &Push{client: client, topic: topic}
}

// Send publishes one message to the configured topic. Safe to call on a
// nil receiver.
func (p *Push) Send(ctx context.Context, title, body string, data map[string]string) {
	if p == nil {
		return
	}
	msg := &messaging.Message{
		Topic: p.topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}
	if _, err := p.client.Send(ctx, msg); err != nil {
		log.Printf("⚠️ FCM: send failed: %v", err)
	}
}
