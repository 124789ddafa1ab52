package store

import "time"

// Role is one of the fixed, seeded access levels: Admin, Teacher,
// Student.
type Role struct {
	ID   int64
	Name string
}

// User is a registered broker client identity. PasswordHash is a bcrypt
// digest; Username is stored encrypted at rest via the field-level
// Fernet-equivalent cipher.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	RoleID       int64
}

// ACLRule grants or denies one user publish/subscribe access to a topic
// filter. Column order is canonical everywhere this type is read or
// written: (TopicFilter, CanPublish, CanSubscribe).
type ACLRule struct {
	ID           int64
	UserID       int64
	TopicFilter  string
	CanPublish   bool
	CanSubscribe bool
}

// RetainedMessage is the persisted form of a topic's single retained
// payload.
type RetainedMessage struct {
	Topic     string
	Payload   string
	QoS       int
	Timestamp time.Time
}

// LogEntry is one append-only audit record.
type LogEntry struct {
	ID        int64
	Timestamp time.Time
	ClientID  string
	Topic     string
	Action    string
	Success   bool
	Details   string
}
