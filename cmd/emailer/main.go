package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/campusops/portal/internal/aws"
	"github.com/campusops/portal/internal/config"
	"github.com/campusops/portal/internal/queue"
)

// localstack's SES inbox at /_aws/ses
type inboxMessage struct {
	ID        string `json:"Id"`
	Timestamp string `json:"Timestamp"`
	Subject   string `json:"Subject"`
	Body      struct {
		Text string `json:"text_part"`
	} `json:"Body"`
	Destination struct {
		ToAddresses []string `json:"ToAddresses"`
	} `json:"Destination"`
}

type inboxResponse struct {
	Messages []inboxMessage `json:"messages"`
}

var (
	enqueuePtr = flag.Bool("enqueue", false, "Enqueue the email task for the worker instead of sending directly")
	viewPtr    = flag.Bool("view", false, "Print the localstack SES inbox")
	testPtr    = flag.Bool("test", false, "Send a test email directly through SES")
	toPtr      = flag.String("to", "test@campus.edu", "Recipient address")
)

const (
	subject = "Campus portal test email"
	body    = "If you can read this, access change notifications will be delivered."
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch {
	case *enqueuePtr:
		q, err := queue.NewQueue(&cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()

		log.Printf("Enqueuing email to %s...", *toPtr)
		info, err := q.EnqueueEmail(*toPtr, subject, body)
		if err != nil {
			log.Fatalf("Failed to enqueue task: %v", err)
		}
		log.Printf("Task enqueued successfully! ID: %s", info.ID)

	case *viewPtr:
		viewEmails(cfg.AWS.EndpointURL)

	case *testPtr:
		ctx := context.Background()
		svc, err := aws.NewEmailService(ctx, cfg.AWS)
		if err != nil {
			log.Fatalf("Failed to create email service: %v", err)
		}

		log.Printf("Verifying sender identity %s...", cfg.AWS.FromEmail)
		if err := svc.VerifyEmailIdentity(ctx); err != nil {
			log.Fatalf("Failed to verify email identity: %v", err)
		}

		log.Printf("Sending email to %s...", *toPtr)
		if err := svc.SendEmail(ctx, *toPtr, subject, body); err != nil {
			log.Fatalf("Failed to send email: %v", err)
		}
		log.Println("Email sent successfully!")

		viewEmails(cfg.AWS.EndpointURL)

	default:
		flag.Usage()
	}
}

func viewEmails(endpoint string) {
	if endpoint == "" {
		log.Println("AWS_ENDPOINT_URL is not set; the inbox is only available on localstack")
		return
	}

	resp, err := http.Get(strings.TrimRight(endpoint, "/") + "/_aws/ses")
	if err != nil {
		log.Printf("Failed to fetch localstack messages: %v", err)
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("Failed to read localstack response: %v", err)
		return
	}

	var inbox inboxResponse
	if err := json.Unmarshal(data, &inbox); err != nil {
		log.Printf("Failed to parse localstack response: %v\nRaw body: %s", err, string(data))
		return
	}

	if len(inbox.Messages) == 0 {
		fmt.Println("No messages found in localstack.")
		return
	}

	fmt.Printf("\nFound %d message(s):\n", len(inbox.Messages))
	for i, msg := range inbox.Messages {
		fmt.Printf("\n[%d] Time: %s\n", i+1, msg.Timestamp)
		fmt.Printf("To: %v\n", msg.Destination.ToAddresses)
		fmt.Printf("Subject: %s\n", msg.Subject)
		fmt.Printf("Body: %s\n", msg.Body.Text)
	}
}
