package ws

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zradj/geets-backend/internal/models"
)

type fakeSender struct {
	events  []models.Event
	sendErr error
	closed  bool
}

func (s *fakeSender) Send(event any) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.events = append(s.events, event.(models.Event))
	return nil
}

func (s *fakeSender) Close() error {
	s.closed = true
	return nil
}

func TestRegistryDeliverFansOutToAllDevices(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()
	phone := &fakeSender{}
	laptop := &fakeSender{}

	r.Register(userID, phone)
	r.Register(userID, laptop)
	require.Equal(t, 2, r.Connections(userID))

	event := models.Event{Type: "message.created", Payload: "hello"}
	r.Deliver(userID, event)

	require.Len(t, phone.events, 1)
	require.Len(t, laptop.events, 1)
	assert.Equal(t, event, phone.events[0])
	assert.Equal(t, event, laptop.events[0])
}

func TestRegistryDeliverToUnknownUserIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Deliver(uuid.New(), models.Event{Type: "message.created"})
	assert.Equal(t, 0, r.Connections(uuid.New()))
}

func TestRegistryDropsFailedConnection(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()
	healthy := &fakeSender{}
	broken := &fakeSender{sendErr: errors.New("write: broken pipe")}

	r.Register(userID, healthy)
	r.Register(userID, broken)

	r.Deliver(userID, models.Event{Type: "message.created"})

	assert.True(t, broken.closed)
	assert.Len(t, healthy.events, 1)
	assert.Equal(t, 1, r.Connections(userID))

	// Only the healthy connection remains after pruning.
	r.Deliver(userID, models.Event{Type: "message.edited"})
	assert.Len(t, healthy.events, 2)
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()
	conn := &fakeSender{}

	r.Register(userID, conn)
	r.Unregister(userID, conn)
	r.Unregister(userID, conn)

	assert.Equal(t, 0, r.Connections(userID))
	r.Deliver(userID, models.Event{Type: "message.created"})
	assert.Empty(t, conn.events)
}

func TestRegistryUnregisterKeepsOtherConnections(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()
	phone := &fakeSender{}
	laptop := &fakeSender{}

	r.Register(userID, phone)
	r.Register(userID, laptop)
	r.Unregister(userID, phone)

	require.Equal(t, 1, r.Connections(userID))
	r.Deliver(userID, models.Event{Type: "message.created"})
	assert.Empty(t, phone.events)
	assert.Len(t, laptop.events, 1)
}
