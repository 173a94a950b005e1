// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	c := DefaultConfig()
	require.Equal(t, 60*time.Second, c.KeepAlive)
	require.True(t, c.PingEnabled)
	require.Equal(t, 5*time.Second, c.PingTimeout)
	require.Equal(t, 30*time.Second, c.ConnectTimeout)
	require.Equal(t, 5*time.Second, c.PublishTimeout)
	require.NoError(t, c.validate())
}

func TestLoadConfigEmptyPathReturnsDefaults(t *testing.T) {
	c, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), c)
}

func TestLoadConfigPartialOverrideKeepsOtherDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  keepAlive: 15s\n"), 0o600))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 15*time.Second, c.KeepAlive)
	require.True(t, c.PingEnabled) // default preserved, not zeroed by the partial doc
	require.Equal(t, 5*time.Second, c.PingTimeout)
}

func TestLoadConfigExplicitPingDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  pingEnabled: false\n"), 0o600))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	require.False(t, c.PingEnabled)
}

func TestConfigValidateRejectsNonPositiveDurations(t *testing.T) {
	c := DefaultConfig()
	c.KeepAlive = 0
	require.Error(t, c.validate())
}
