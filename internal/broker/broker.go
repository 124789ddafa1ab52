// Package broker implements the Subscription Router: the central
// per-connection protocol state machine that ties together the session
// manager, the topic router, the ACL evaluator, the retained-message
// store, and the audit logger.
package broker

import (
	"context"
	"log/slog"

	"github.com/schoolmq/broker/internal/codec"
	"github.com/schoolmq/broker/internal/session"
	"github.com/schoolmq/broker/internal/store"
	"github.com/schoolmq/broker/internal/topic"
)

// ACLEvaluator is the subset of *auth.Evaluator the router depends on.
type ACLEvaluator interface {
	VerifyUser(ctx context.Context, username, password string) (*store.User, error)
	CanSubscribe(ctx context.Context, userID int64, topicFilter string) (bool, error)
	CanPublish(ctx context.Context, userID int64, topic string) (bool, error)
}

// RetainedStore is the subset of *store.Store the router needs for
// retained-message replay and updates.
type RetainedStore interface {
	SetRetained(ctx context.Context, topic, payload string, qos int) error
	DeleteRetained(ctx context.Context, topic string) error
	ListRetained(ctx context.Context) ([]store.RetainedMessage, error)
}

// AuditLogger records a business event. It is best-effort: a logging
// failure is recorded in process diagnostics but never surfaces to the
// protocol state machine.
type AuditLogger interface {
	Log(ctx context.Context, entry store.LogEntry)
}

// Broker holds the state shared by every connection: the live session
// table, the subscription router, the ACL evaluator, the retained store,
// and the audit sink. One Broker serves every accepted connection.
type Broker struct {
	sessions *session.Manager
	topics   *topic.Router
	acl      ACLEvaluator
	retained RetainedStore
	audit    AuditLogger
	log      *slog.Logger
}

// New builds a Broker. The returned value implements
// session.WillPublisher and session.TakeoverObserver, and wires itself
// as both when constructing its internal session manager.
func New(acl ACLEvaluator, retained RetainedStore, audit AuditLogger, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	b := &Broker{
		topics:   topic.NewRouter(),
		acl:      acl,
		retained: retained,
		audit:    audit,
		log:      log,
	}
	b.sessions = session.NewManager(b, b)
	return b
}

// SessionCount reports the number of live sessions, for diagnostics.
func (b *Broker) SessionCount() int {
	return b.sessions.Count()
}

// OnTakeover implements session.TakeoverObserver: a second CONNECT for
// clientID evicted the prior session. Its subscriptions are purged (the
// invariant that every subscription entry references a live session) and
// the takeover is audit-logged. The evicted session's will is
// deliberately NOT fired here — session.Manager.CreateSession already
// chose not to call Terminate for it.
func (b *Broker) OnTakeover(clientID string) {
	b.topics.UnsubscribeAll(clientID)
	b.audit.Log(context.Background(), store.LogEntry{
		ClientID: clientID,
		Action:   "CONNECT",
		Success:  true,
		Details:  "session takeover",
	})
}

// PublishWill implements session.WillPublisher: it dispatches the will
// as a synthetic QoS-0 PUBLISH from a system principal, updating the
// retained store first if the will itself is marked retained.
func (b *Broker) PublishWill(ctx context.Context, clientID string, will *codec.Will) error {
	if will.Retain {
		if will.Payload == "" {
			_ = b.retained.DeleteRetained(ctx, will.Topic)
		} else if err := b.retained.SetRetained(ctx, will.Topic, will.Payload, 0); err != nil {
			b.log.Error("will retain update failed", "client_id", clientID, "topic", will.Topic, "error", err)
		}
	}
	b.dispatch(ctx, will.Topic, will.Payload, 0)
	b.audit.Log(ctx, store.LogEntry{
		ClientID: clientID,
		Topic:    will.Topic,
		Action:   "PUBLISH",
		Success:  true,
		Details:  "last will and testament",
	})
	return nil
}

// dispatch delivers a live PUBLISH to every current subscriber whose
// filter matches topic. Delivery QoS is min(publishQoS, subscriberQoS);
// a fresh packet id is allocated from the destination session whenever
// the delivery QoS is at least 1. The retained flag on dispatched copies
// is always false — retain is only ever set on replayed retained
// messages, never on live forwards.
func (b *Broker) dispatch(ctx context.Context, topicName, payload string, publishQoS int) {
	for _, sub := range b.topics.Match(topicName) {
		destSession, ok := b.sessions.Get(sub.ClientID)
		if !ok {
			continue
		}

		deliveryQoS := publishQoS
		if sub.QoS < deliveryQoS {
			deliveryQoS = sub.QoS
		}

		pkt := &codec.Packet{
			Type:    codec.TypePublish,
			Topic:   topicName,
			Payload: payload,
			QoS:     deliveryQoS,
			Retain:  false,
		}
		if deliveryQoS >= 1 {
			pkt.ID = destSession.NextMsgID()
		}

		if err := destSession.Writer.WritePacket(pkt); err != nil {
			b.log.Warn("dispatch write failed", "client_id", sub.ClientID, "topic", topicName, "error", err)
		}
	}
}
