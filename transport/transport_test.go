// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsConnectionLevelClassifiesNetErrors(t *testing.T) {
	require.True(t, isConnectionLevel(&net.OpError{Op: "read", Err: errors.New("boom")}))
	require.True(t, isConnectionLevel(net.ErrClosed))
	require.False(t, isConnectionLevel(errors.New("some decode error")))
	require.False(t, isConnectionLevel(nil))
}

func TestConnErrorFilterDebouncesRepeatedText(t *testing.T) {
	var f connErrorFilter
	err := &net.OpError{Op: "write", Err: errors.New("broken pipe")}

	require.True(t, f.shouldReport(err))
	require.False(t, f.shouldReport(err)) // same text within the debounce window
}

func TestConnErrorFilterReportsAfterDebounceWindow(t *testing.T) {
	var f connErrorFilter
	err := &net.OpError{Op: "write", Err: errors.New("broken pipe")}

	f.lastText = err.Error()
	f.lastAt = time.Now().Add(-2 * errorDebounce)

	require.True(t, f.shouldReport(err))
}

func TestConnErrorFilterRejectsNonConnectionErrors(t *testing.T) {
	var f connErrorFilter
	require.False(t, f.shouldReport(errors.New("decode error")))
}
