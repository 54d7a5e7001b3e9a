package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdb/guardian/pkg/types"
)

type errSubscriber struct{}

func (errSubscriber) Send(event *types.ProgressEvent) error {
	return assert.AnError
}

func TestConnectAddsToChannelAndUserSets(t *testing.T) {
	b := NewBus()
	sub := NewChannelSubscriber()
	b.Connect(sub, "backups", "user-1")

	assert.Equal(t, 1, b.SubscriberCount("backups"))
	assert.Len(t, b.userSubs["user-1"], 1)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	b := NewBus()
	sub := NewChannelSubscriber()
	b.Connect(sub, "backups", "")

	b.Disconnect(sub, "backups", "")
	b.Disconnect(sub, "backups", "")

	assert.Equal(t, 0, b.SubscriberCount("backups"))
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	s1, s2 := NewChannelSubscriber(), NewChannelSubscriber()
	b.Connect(s1, "backups", "")
	b.Connect(s2, "backups", "")

	event := &types.ProgressEvent{Channel: "backups", Kind: types.EventBackupProgress}
	b.Broadcast(event, "backups")

	require.Len(t, s1, 1)
	require.Len(t, s2, 1)
}

func TestBroadcastSweepsStalledSubscriberWithoutAffectingOthers(t *testing.T) {
	b := NewBus()
	healthy1 := NewChannelSubscriber()
	healthy2 := NewChannelSubscriber()
	var stalled Subscriber = errSubscriber{}

	b.Connect(healthy1, "all", "")
	b.Connect(stalled, "all", "")
	b.Connect(healthy2, "all", "")

	event := &types.ProgressEvent{Channel: "all", Kind: types.EventLog}
	b.Broadcast(event, "all")

	require.Len(t, healthy1, 1)
	require.Len(t, healthy2, 1)
	assert.Equal(t, 2, b.SubscriberCount("all"))
}

func TestBroadcastRemovesSubscriberWhoseBufferIsFull(t *testing.T) {
	b := NewBus()
	sub := NewChannelSubscriber()
	b.Connect(sub, "logs", "")

	for i := 0; i < 50; i++ {
		b.Broadcast(&types.ProgressEvent{Channel: "logs"}, "logs")
	}
	assert.Equal(t, 1, b.SubscriberCount("logs"))

	b.Broadcast(&types.ProgressEvent{Channel: "logs"}, "logs")
	assert.Equal(t, 0, b.SubscriberCount("logs"))
}

func TestBroadcastToUserOnlyReachesThatUsersSubscribers(t *testing.T) {
	b := NewBus()
	mine := NewChannelSubscriber()
	theirs := NewChannelSubscriber()
	b.Connect(mine, "all", "user-1")
	b.Connect(theirs, "all", "user-2")

	b.BroadcastToUser(&types.ProgressEvent{Kind: types.EventNotification}, "user-1")

	assert.Len(t, mine, 1)
	assert.Len(t, theirs, 0)
}
