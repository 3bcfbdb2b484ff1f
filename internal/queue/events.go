package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// TypeAttendanceMarked is published after a student redeemed a code.
const TypeAttendanceMarked = "attendance.marked"

// AttendanceMarked is the body of a TypeAttendanceMarked message.
type AttendanceMarked struct {
	Email     string `json:"email"`
	ClassID   int64  `json:"class_id"`
	Timestamp int64  `json:"timestamp"`
}

// PublishMarked encodes evt and publishes it on q.
func PublishMarked(ctx context.Context, q Queue, evt AttendanceMarked) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", TypeAttendanceMarked, err)
	}
	return q.Publish(ctx, Message{Type: TypeAttendanceMarked, Body: body})
}

// DecodeMarked decodes the body of a TypeAttendanceMarked message.
func DecodeMarked(msg Message) (AttendanceMarked, error) {
	var evt AttendanceMarked
	if msg.Type != TypeAttendanceMarked {
		return evt, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return evt, fmt.Errorf("decode %s: %w", TypeAttendanceMarked, err)
	}
	return evt, nil
}
