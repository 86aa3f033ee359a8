package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/studyforge/planner-adapter/internal/metrics"
	"github.com/studyforge/planner-adapter/pkg/eventbus"
	"github.com/studyforge/planner-adapter/pkg/logger"
	"github.com/studyforge/planner-adapter/pkg/model"
)

const envelopeVersion = "1.0.0"

// Publisher wraps a NATS connection and publishes canonical event envelopes
// for session lifecycle and stats events.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	service string
}

// New creates a Publisher with JetStream enabled. subject is the fallback
// used when PublishEnvelope is called without one.
func New(nc *nats.Conn, subject, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		subject: subject,
		service: service,
	}, nil
}

// PublishEnvelope serializes and publishes a canonical event envelope.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		return err
	}

	if subject == "" {
		subject = p.subject
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	if _, err := p.js.PublishMsg(msg); err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncNATSPublishError(subject)
		return err
	}

	logger.S().Infow("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
	)
	return nil
}

// PublishSessionEvent emits one session lifecycle event, e.g.
// evt.session.terminated.v1.
func (p *Publisher) PublishSessionEvent(ctx context.Context, ev model.SessionEvent) error {
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		UserEmail:     ev.UserEmail,
		Topic:         subjectFor(ev.Type),
		EventType:     string(ev.Type),
		Version:       envelopeVersion,
		Timestamp:     time.Now().UTC(),
	}

	data, _ := json.Marshal(ev)
	env.Payload = data

	return p.PublishEnvelope(ctx, env.Topic, env)
}

// PublishStatsRefreshed emits the refreshed dashboard snapshot.
func (p *Publisher) PublishStatsRefreshed(ctx context.Context, stats model.StudyStats) error {
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Topic:         subjectFor(model.StatsRefreshed),
		EventType:     string(model.StatsRefreshed),
		Version:       envelopeVersion,
		Timestamp:     time.Now().UTC(),
	}

	data, _ := json.Marshal(stats)
	env.Payload = data

	return p.PublishEnvelope(ctx, env.Topic, env)
}

// Bridge forwards session lifecycle events from the in-process bus onto
// NATS. Publishing runs on its own short budget so a slow broker never blocks
// a session transition.
func (p *Publisher) Bridge(bus *eventbus.EventBus) {
	bus.Subscribe(model.SessionEvent{}, func(event interface{}) {
		ev, ok := event.(model.SessionEvent)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.PublishSessionEvent(ctx, ev) // failures already logged and counted
	})
}

// subjectFor maps an event type onto its versioned subject,
// e.g. session.started -> evt.session.started.v1.
func subjectFor(t model.SessionEventType) string {
	return "evt." + string(t) + ".v1"
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
