// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObserverHubFanOut(t *testing.T) {
	h := newObserverHub()

	var got []Status
	h.Add(Delegate{StatusChanged: func(old, new Status) { got = append(got, new) }})
	h.Add(Delegate{StatusChanged: func(old, new Status) { got = append(got, new) }})

	h.notifyStatus(StatusClosed, StatusOpening)
	require.Len(t, got, 2)
}

func TestObserverHubRemove(t *testing.T) {
	h := newObserverHub()

	called := false
	id := h.Add(Delegate{StatusChanged: func(old, new Status) { called = true }})
	h.Remove(id)

	h.notifyStatus(StatusClosed, StatusOpening)
	require.False(t, called)
}

func TestObserverHubMessageAndError(t *testing.T) {
	h := newObserverHub()

	var msg Message
	var errKind ErrorKind
	h.Add(Delegate{
		Message: func(m Message) { msg = m },
		Error:   func(e *Error) { errKind = e.Kind },
	})

	h.notifyMessage(Message{Topic: "a/b"})
	require.Equal(t, "a/b", msg.Topic)

	h.notifyError(newError(ErrKindTimeout))
	require.Equal(t, ErrKindTimeout, errKind)
}
