package broker

import (
	"context"
	"io"

	"github.com/schoolmq/broker/internal/brokererr"
	"github.com/schoolmq/broker/internal/codec"
	"github.com/schoolmq/broker/internal/session"
	"github.com/schoolmq/broker/internal/store"
	"github.com/schoolmq/broker/internal/topic"
)

// ServeConnection runs one connection's protocol state machine end to
// end: INIT (the CONNECT handshake) through ACTIVE (the main packet
// loop) to CLOSED (cleanup). It returns once the connection is done;
// the caller (internal/network's Connection Handler) is responsible for
// closing the underlying socket.
func (b *Broker) ServeConnection(ctx context.Context, reader *codec.Reader, writer *codec.Writer) error {
	pkt, err := reader.ReadPacket()
	if err != nil {
		return err
	}
	if pkt.Type != codec.TypeConnect {
		return brokererr.ErrProtocolViolation
	}

	user, authErr := b.acl.VerifyUser(ctx, pkt.Username, pkt.Password)
	if authErr != nil {
		_ = writer.WritePacket(&codec.Packet{Type: codec.TypeConnAck, Success: false})
		b.audit.Log(ctx, store.LogEntry{ClientID: pkt.ClientID, Action: "CONNECT", Success: false, Details: "auth failed"})
		return brokererr.ErrAuthFailure
	}

	sess := b.sessions.CreateSession(pkt.ClientID, writer)
	sess.User = &session.User{ID: user.ID, Username: user.Username, RoleID: user.RoleID}
	if pkt.LastWill != nil {
		sess.SetWill(pkt.LastWill)
	}

	if err := writer.WritePacket(&codec.Packet{Type: codec.TypeConnAck, Success: true}); err != nil {
		b.sessions.Terminate(ctx, pkt.ClientID, true)
		return err
	}
	b.audit.Log(ctx, store.LogEntry{ClientID: pkt.ClientID, Action: "CONNECT", Success: true})

	b.replayRetainedOnConnect(ctx, sess, user.ID)

	abrupt := b.runLoop(ctx, reader, sess, user.ID)
	b.cleanup(ctx, pkt.ClientID, abrupt)
	return nil
}

// replayRetainedOnConnect pushes every retained message the newly
// connected user may subscribe to, per spec.md §4.5 step 1. Delivery is
// unicast to this connection, always qos=0 retain=true.
func (b *Broker) replayRetainedOnConnect(ctx context.Context, sess *session.Session, userID int64) {
	messages, err := b.retained.ListRetained(ctx)
	if err != nil {
		b.log.Warn("list retained failed on connect", "error", err)
		return
	}
	for _, msg := range messages {
		allowed, err := b.acl.CanSubscribe(ctx, userID, msg.Topic)
		if err != nil || !allowed {
			continue
		}
		_ = sess.Writer.WritePacket(&codec.Packet{
			Type: codec.TypePublish, Topic: msg.Topic, Payload: msg.Payload, Retain: true, QoS: 0,
		})
	}
}

// replayRetainedOnSubscribe pushes every retained message matching the
// newly subscribed filter, per the decided "replay on SUBSCRIBE too"
// resolution of spec.md §9's retained-replay-scope open question.
func (b *Broker) replayRetainedOnSubscribe(ctx context.Context, sess *session.Session, filter string) {
	messages, err := b.retained.ListRetained(ctx)
	if err != nil {
		b.log.Warn("list retained failed on subscribe", "error", err)
		return
	}
	for _, msg := range messages {
		if !topic.Match(filter, msg.Topic) {
			continue
		}
		_ = sess.Writer.WritePacket(&codec.Packet{
			Type: codec.TypePublish, Topic: msg.Topic, Payload: msg.Payload, Retain: true, QoS: 0,
		})
	}
}

// runLoop is the ACTIVE-state main loop. It returns true if the
// connection ended abruptly (EOF, I/O error, malformed packet, or any
// unrecognized condition) and false if the peer sent a clean DISCONNECT.
func (b *Broker) runLoop(ctx context.Context, reader *codec.Reader, sess *session.Session, userID int64) bool {
	for {
		pkt, err := reader.ReadPacket()
		if err != nil {
			if err != io.EOF {
				b.log.Debug("connection read error", "client_id", sess.ClientID, "error", err)
			}
			return true
		}

		switch pkt.Type {
		case codec.TypeSubscribe:
			b.handleSubscribe(ctx, sess, userID, pkt)
		case codec.TypePublish:
			b.handlePublish(ctx, sess, userID, pkt)
		case codec.TypePubRel:
			b.handlePubrel(ctx, sess, pkt)
		case codec.TypeDisconnect:
			return false
		default:
			return true
		}
	}
}

func (b *Broker) handleSubscribe(ctx context.Context, sess *session.Session, userID int64, pkt *codec.Packet) {
	allowed, err := b.acl.CanSubscribe(ctx, userID, pkt.Topic)
	if err != nil {
		allowed = false
	}
	if !allowed {
		_ = sess.Writer.WritePacket(&codec.Packet{Type: codec.TypeSubAck, Success: false, Topic: pkt.Topic})
		b.audit.Log(ctx, store.LogEntry{ClientID: sess.ClientID, Topic: pkt.Topic, Action: "SUBSCRIBE", Success: false, Details: "ACL denied"})
		return
	}

	_ = b.topics.Subscribe(sess.ClientID, pkt.Topic, pkt.QoS)
	_ = sess.Writer.WritePacket(&codec.Packet{Type: codec.TypeSubAck, Success: true, Topic: pkt.Topic})
	b.audit.Log(ctx, store.LogEntry{ClientID: sess.ClientID, Topic: pkt.Topic, Action: "SUBSCRIBE", Success: true})

	b.replayRetainedOnSubscribe(ctx, sess, pkt.Topic)
}

func (b *Broker) handlePublish(ctx context.Context, sess *session.Session, userID int64, pkt *codec.Packet) {
	allowed, err := b.acl.CanPublish(ctx, userID, pkt.Topic)
	if err != nil {
		allowed = false
	}
	if !allowed {
		// Per spec.md §4.5/§7: silent drop, no PUBACK/PUBREC, even at
		// qos 1/2. This is a documented limitation, not an oversight.
		b.audit.Log(ctx, store.LogEntry{ClientID: sess.ClientID, Topic: pkt.Topic, Action: "PUBLISH", Success: false, Details: "ACL denied"})
		return
	}

	if pkt.Retain {
		b.updateRetained(ctx, pkt.Topic, pkt.Payload, pkt.QoS)
	}

	switch pkt.QoS {
	case 0:
		b.dispatch(ctx, pkt.Topic, pkt.Payload, 0)
	case 1:
		_ = sess.Writer.WritePacket(&codec.Packet{Type: codec.TypePubAck, ID: pkt.ID})
		b.dispatch(ctx, pkt.Topic, pkt.Payload, 1)
	case 2:
		sess.ParkPubrec(pkt.ID, pkt.Topic, pkt.Payload, pkt.Retain)
		_ = sess.Writer.WritePacket(&codec.Packet{Type: codec.TypePubRec, ID: pkt.ID})
	}

	b.audit.Log(ctx, store.LogEntry{ClientID: sess.ClientID, Topic: pkt.Topic, Action: "PUBLISH", Success: true})
}

// updateRetained implements the decided clear-on-empty-payload
// resolution: retain=true with an empty payload deletes the retained
// entry for that topic instead of storing an empty one.
func (b *Broker) updateRetained(ctx context.Context, topicName, payload string, qos int) {
	var err error
	if payload == "" {
		err = b.retained.DeleteRetained(ctx, topicName)
	} else {
		err = b.retained.SetRetained(ctx, topicName, payload, qos)
	}
	if err != nil {
		b.log.Error("retained store update failed", "topic", topicName, "error", err)
	}
}

func (b *Broker) handlePubrel(ctx context.Context, sess *session.Session, pkt *codec.Packet) {
	topicName, payload, _, ok := sess.TakePubrec(pkt.ID)
	if ok {
		b.dispatch(ctx, topicName, payload, 2)
	} else {
		b.log.Debug("PUBREL for unknown packet id", "client_id", sess.ClientID, "id", pkt.ID)
	}
	// PUBCOMP is sent whether or not the id was known: a replayed PUBREL
	// or one for an unknown id is a protocol violation, log-only, still
	// acknowledged (spec.md §7).
	_ = sess.Writer.WritePacket(&codec.Packet{Type: codec.TypePubComp, ID: pkt.ID})
}

// cleanup tears down clientID's session and subscriptions and fires its
// will if the exit was abrupt, per spec.md §4.5.2.
func (b *Broker) cleanup(ctx context.Context, clientID string, abrupt bool) {
	b.topics.UnsubscribeAll(clientID)
	b.sessions.Terminate(ctx, clientID, abrupt)
	b.audit.Log(ctx, store.LogEntry{ClientID: clientID, Action: "DISCONNECT", Success: true})
}
