// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentifierPoolStartsAtOneAndIncrements(t *testing.T) {
	var p identifierPool
	require.Equal(t, uint16(1), p.next16())
	require.Equal(t, uint16(2), p.next16())
	require.Equal(t, uint16(3), p.next16())
}

func TestIdentifierPoolWrapsToOneAfterMax(t *testing.T) {
	p := identifierPool{next: 65535}
	require.Equal(t, uint16(1), p.next16())
}

func TestIdentifierPoolNeverAllocatesZero(t *testing.T) {
	var p identifierPool
	for i := 0; i < 200000; i++ {
		require.NotEqual(t, uint16(0), p.next16())
	}
}
