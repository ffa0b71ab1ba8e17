package docstore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const feedbackCollection = "feedback"

// AppendFeedback stores one feedback message tagged with the sender and the
// submission time. Records are append-only; nothing in the gateway reads
// them back.
func (c *Client) AppendFeedback(ctx context.Context, uid string, text string, now time.Time) error {
	fields := map[string]Value{
		"uid":       stringValue(uid),
		"text":      stringValue(text),
		"createdAt": timestampValue(now),
	}

	return c.createDocument(ctx, feedbackCollection, uuid.NewString(), fields)
}
