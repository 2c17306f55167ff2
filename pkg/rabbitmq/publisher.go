package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"checkin-pipeline/config"
	"checkin-pipeline/dto"
)

const (
	exchangeName = "checkin_events"
	routingKey   = "checkin.video.saved"
)

// Publisher emits check-in events for the surrounding platform (feed, AI
// coach ingest). Publishing is best-effort from the pipeline's point of view:
// the record is already durable when an event goes out.
type Publisher struct {
	conn *amqp.Connection
	cfg  *config.RabbitMQ
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) *Publisher {
	return &Publisher{conn: conn, cfg: cfg}
}

// VideoSaved publishes a VideoSavedEvent. Failures are logged, never
// propagated, so a broker outage cannot fail an already-saved check-in.
func (p *Publisher) VideoSaved(ctx context.Context, userID, date, videoURL string, durationSeconds int, sizeBytes int64) {
	event := dto.VideoSavedEvent{
		UserID:          userID,
		Date:            date,
		VideoURL:        videoURL,
		DurationSeconds: durationSeconds,
		SizeBytes:       sizeBytes,
		SavedAt:         time.Now().UTC(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to marshal video saved event")
		return
	}

	ch, err := p.conn.Channel()
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to open channel for video saved event")
		return
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchangeName, p.cfg.Kind, true, false, false, false, nil); err != nil {
		zerolog.Ctx(ctx).Error().Str("exchange", exchangeName).Err(err).Msg("failed to declare exchange")
		return
	}

	err = ch.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to publish video saved event")
		return
	}

	zerolog.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("date", date).
		Msg("video saved event published")
}
