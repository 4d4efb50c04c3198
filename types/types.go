package types

// Notification is one change event pushed by the content platform for an
// active subscription. Immutable once parsed.
//
// ChangeType is a pointer on purpose: the upstream schema added the field
// late and older subscriptions deliver notifications without it. Absence is
// a valid state, distinct from an empty string, and consumers must branch
// on nil rather than assume a default.
type Notification struct {
	SubscriptionID     string  `json:"subscriptionId"`
	Resource           string  `json:"resource"`
	ExpirationDateTime string  `json:"expirationDateTime"`
	TenantID           string  `json:"tenantId"`
	SiteURL            string  `json:"siteUrl"`
	WebID              string  `json:"webId"`
	ClientState        string  `json:"clientState,omitempty"`
	ChangeType         *string `json:"changeType,omitempty"`
}

// NotificationBatch is the top-level collection delivered in one webhook
// call. A batch with zero elements is valid.
type NotificationBatch struct {
	Value []Notification `json:"value"`
}

// ContentTypeJSON is the content-type tag declared on every queue message.
const ContentTypeJSON = "application/json"

// QueueMessage is the publish-ready envelope wrapping one notification.
// Created exactly once per notification and never mutated afterwards.
type QueueMessage struct {
	Body        Notification
	ContentType string
}

// NewQueueMessage wraps a notification for publishing.
func NewQueueMessage(n Notification) QueueMessage {
	return QueueMessage{Body: n, ContentType: ContentTypeJSON}
}
