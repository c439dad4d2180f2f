package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gatepass/gatepass/internal/adapters/rabbit"
	"github.com/gatepass/gatepass/internal/config"
	"github.com/gatepass/gatepass/internal/notify"
	"github.com/gatepass/gatepass/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	qrcode "github.com/skip2/go-qrcode"
	gomail "gopkg.in/gomail.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbit.NewConsumer(conn, notify.NotificationQueue, notify.TicketsIssuedKey)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	worker := NewNotifyWorker(consumer, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := worker.Run(ctx); err != nil {
			logger.Error("notify worker stopped", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown notify worker")
}

// NotifyWorker turns issued-ticket bundles into buyer emails with one inline
// QR image per ticket. Delivery is best effort: a failed send is logged and
// the message acked, never requeued into a retry storm.
type NotifyWorker struct {
	consumer *rabbit.Consumer
	cfg      *config.Config
	logger   observability.Logger
}

func NewNotifyWorker(consumer *rabbit.Consumer, cfg *config.Config, logger observability.Logger) *NotifyWorker {
	return &NotifyWorker{consumer: consumer, cfg: cfg, logger: logger}
}

func (w *NotifyWorker) Run(ctx context.Context) error {
	deliveries, err := w.consumer.Consume(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("notify worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handle(d)
		}
	}
}

func (w *NotifyWorker) handle(d amqp.Delivery) {
	defer d.Ack(false)

	var bundle notify.Bundle
	if err := json.Unmarshal(d.Body, &bundle); err != nil {
		w.logger.Error("failed to decode ticket bundle", err)
		return
	}

	log := w.logger.WithField("reference", bundle.Reference)
	if err := w.sendEmail(bundle); err != nil {
		log.WithError(err).Error("failed to send ticket email")
		return
	}
	log.Info("ticket email sent")
}

func (w *NotifyWorker) sendEmail(bundle notify.Bundle) error {
	m := gomail.NewMessage()
	m.SetHeader("From", w.cfg.EmailFrom)
	m.SetHeader("To", bundle.CustomerEmail)
	m.SetHeader("Subject", fmt.Sprintf("Your tickets for %s", bundle.EventName))

	body := fmt.Sprintf("<h2>%s</h2><p>%s — %s</p><p>Hi %s, your tickets are below.</p>",
		bundle.EventName, bundle.EventVenue, bundle.EventStartsAt.Format("Mon, 2 Jan 2006 15:04"),
		bundle.CustomerName)

	for _, group := range bundle.Groups {
		body += fmt.Sprintf("<h3>%s</h3>", group.TierName)
		for _, t := range group.Tickets {
			png, err := qrcode.Encode(t.QRPayload, qrcode.Medium, 256)
			if err != nil {
				return err
			}
			cid := t.OrderReference + ".png"
			m.Embed(cid, gomail.SetCopyFunc(func(wr io.Writer) error {
				_, err := wr.Write(png)
				return err
			}))
			body += fmt.Sprintf(`<p>%s<br><img src="cid:%s" alt="ticket qr"></p>`, t.OrderReference, cid)
		}
	}
	m.SetBody("text/html", body)

	dialer := gomail.NewDialer(w.cfg.SMTPHost, w.cfg.SMTPPort, w.cfg.SMTPUser, w.cfg.SMTPPassword)
	return dialer.DialAndSend(m)
}
