package consumerWorker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"eventhub/internal/mailer"
	"eventhub/internal/notify"
	"eventhub/internal/rabbit"
)

type consumer interface {
	Consume(handler func(routingKey string, body []byte) error) error
}

type sender interface {
	Send(recipient, subject, body string) error
}

// Reader turns lifecycle events from the broker into organizer e-mails.
type Reader struct {
	RMQ    consumer
	mail   sender
	log    *zerolog.Logger
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq consumer, mail sender, log *zerolog.Logger) *Reader {
	return &Reader{
		RMQ:  rmq,
		mail: mail,
		log:  log,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.log.Info().Msg("notification reader started")

	go func() {
		defer close(r.done)

		if err := r.RMQ.Consume(r.handle); err != nil {
			r.log.Error().Err(err).Msg("failed to start consuming")
			return
		}

		<-cctx.Done()
		r.log.Info().Msg("notification reader stopped by context")
	}()
}

// handle acks delivery failures: e-mail is best-effort and a retry storm helps nobody.
func (r *Reader) handle(routingKey string, body []byte) error {
	ev, err := notify.Decode(body)
	if err != nil {
		r.log.Error().Err(err).Str("routing_key", routingKey).Msg("dropping malformed notification")
		return fmt.Errorf("%w: %v", rabbit.ErrMalformed, err)
	}

	r.log.Info().
		Str("kind", string(ev.Kind)).
		Str("request_id", ev.Request.ID).
		Msg("notification received")

	recipient, subject, text := mailer.Compose(ev)
	if recipient == "" {
		r.log.Warn().Str("request_id", ev.Request.ID).Msg("notification has no organizer e-mail, skipping")
		return nil
	}

	if err := r.mail.Send(recipient, subject, text); err != nil {
		r.log.Warn().
			Err(err).
			Str("kind", string(ev.Kind)).
			Str("request_id", ev.Request.ID).
			Msg("failed to send notification e-mail")
	}
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
