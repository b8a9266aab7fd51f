package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// messageBus delivers agent<->agent and agent<->user messages (spec §4.4,
// §6 send_message/poll_inbox/poll_user_inbox/get_message_history). The
// teacher's `internal/event/bus.go` wires up watermill's gochannel pub/sub
// but never actually publishes or subscribes through it (only exposes
// `PubSub()` for hypothetical callers). Here every send is a Publish on the
// recipient's topic and is also appended to an in-memory per-recipient
// slice; the poll ops read those slices, not a Subscribe channel.
type messageBus struct {
	pubsub *gochannel.GoChannel

	mu        sync.Mutex
	inboxes   map[string][]InboxMessage // agent_id -> pending messages (FIFO)
	userInbox []InboxMessage            // persistent history of user-directed messages
	acked     map[string]bool           // message id -> acknowledged
	nextID    int64

	subs map[string]message.Subscriber
}

func newMessageBus() *messageBus {
	logger := watermill.NopLogger{}
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
		Persistent:          true,
	}, logger)
	return &messageBus{
		pubsub:  pubsub,
		inboxes: make(map[string][]InboxMessage),
		acked:   make(map[string]bool),
	}
}

func topicFor(agentID string) string { return "agent." + agentID }

const userTopic = "user.inbox"

// send publishes a message onto the recipient's topic (or the user topic
// when to == "user") and appends it to the in-memory FIFO poll buffer that
// poll/pollUser drain, mirroring the at-least-once persistent-topic
// semantics watermill's gochannel gives us with Persistent: true.
func (b *messageBus) send(from, to, msgType, content string, now time.Time) (InboxMessage, error) {
	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("msg-%d", b.nextID)
	b.mu.Unlock()

	msg := InboxMessage{From: from, Type: msgType, Content: content, ID: id, Timestamp: now.Unix()}

	topic := topicFor(to)
	if to == "user" {
		topic = userTopic
	}
	wmMsg := message.NewMessage(id, []byte(content))
	wmMsg.Metadata.Set("from", from)
	wmMsg.Metadata.Set("type", msgType)
	if err := b.pubsub.Publish(topic, wmMsg); err != nil {
		return InboxMessage{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if to == "user" {
		b.userInbox = append(b.userInbox, msg)
	} else {
		b.inboxes[to] = append(b.inboxes[to], msg)
	}
	return msg, nil
}

// poll drains (and removes) every unread message addressed to agentID,
// oldest first. A second poll with nothing new returns an empty slice
// rather than re-delivering (spec's round-trip law: draining is
// destructive for the per-agent inbox, non-destructive for user history).
func (b *messageBus) poll(agentID string) []InboxMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.inboxes[agentID]
	b.inboxes[agentID] = nil
	return msgs
}

// pollUser returns the user-inbox messages not yet acknowledged, without
// consuming them; acknowledge marks entries as read.
func (b *messageBus) pollUser() []InboxMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]InboxMessage, 0, len(b.userInbox))
	for _, m := range b.userInbox {
		if !b.acked[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

func (b *messageBus) acknowledge(ids []string, all bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if all {
		for _, m := range b.userInbox {
			b.acked[m.ID] = true
		}
		return
	}
	for _, id := range ids {
		b.acked[id] = true
	}
}

// history returns the full user-inbox transcript, acknowledged or not.
func (b *messageBus) history() []InboxMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]InboxMessage, len(b.userInbox))
	copy(out, b.userInbox)
	return out
}

// subscribeAgent opens (once) a watermill Subscribe channel for agentID so
// the bus can be drained via context cancellation on disconnect; primarily
// exists to exercise watermill's Subscribe path symmetrically with Publish.
func (b *messageBus) subscribeAgent(ctx context.Context, agentID string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topicFor(agentID))
}

func (b *messageBus) close() error {
	return b.pubsub.Close()
}
