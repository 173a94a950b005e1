// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package transport

import (
	"crypto/tls"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTCPEndpointDefaultsPort1883(t *testing.T) {
	e := TCPEndpoint{Host: "broker.example"}
	require.Equal(t, "broker.example:1883", e.addr())
}

func TestTCPEndpointHonorsExplicitPort(t *testing.T) {
	e := TCPEndpoint{Host: "broker.example", Port: 11883}
	require.Equal(t, "broker.example:11883", e.addr())
}

func TestTLSEndpointDefaultsPort8883(t *testing.T) {
	e := TLSEndpoint{Host: "broker.example"}
	require.Equal(t, "broker.example:8883", e.addr())
}

func TestQUICEndpointDefaultsPort14567(t *testing.T) {
	e := QUICEndpoint{Host: "broker.example"}
	require.Equal(t, "broker.example:14567", e.addr())
}

func TestWSEndpointDefaultsPortAndPath(t *testing.T) {
	e := WSEndpoint{Host: "broker.example"}
	require.Equal(t, "ws://broker.example:8083/mqtt", e.url("ws", 8083))
}

func TestWSEndpointHonorsExplicitPathAndPort(t *testing.T) {
	e := WSEndpoint{Host: "broker.example", Port: 9001, Path: "/custom"}
	require.Equal(t, "wss://broker.example:9001/custom", e.url("wss", 8084))
}

func TestTLSOptionsBuildDefaultsToSystemRootsAndFallsBackServerName(t *testing.T) {
	o := TLSOptions{}
	cfg := o.build("broker.example")

	require.Equal(t, "broker.example", cfg.ServerName)
	require.False(t, cfg.InsecureSkipVerify)
	require.Nil(t, cfg.RootCAs)
	require.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.Equal(t, uint16(tls.VersionTLS13), cfg.MaxVersion)
}

func TestTLSOptionsBuildTrustAllSkipsVerification(t *testing.T) {
	cfg := TLSOptions{Trust: TrustAll}.build("broker.example")
	require.True(t, cfg.InsecureSkipVerify)
}

func TestTLSOptionsBuildTrustRootsPopulatesPool(t *testing.T) {
	cfg := TLSOptions{Trust: TrustRoots}.build("broker.example")
	require.NotNil(t, cfg.RootCAs)
}

func TestTLSOptionsBuildTrustCustomVerifyInstallsCallback(t *testing.T) {
	cfg := TLSOptions{
		Trust: TrustCustomVerify,
		CustomVerify: func(rawCerts [][]byte, verified [][]*x509.Certificate) error {
			return nil
		},
	}.build("broker.example")

	require.True(t, cfg.InsecureSkipVerify)
	require.NotNil(t, cfg.VerifyPeerCertificate)
}

func TestTLSOptionsBuildExplicitServerNameOverridesDefault(t *testing.T) {
	cfg := TLSOptions{ServerName: "override.example"}.build("broker.example")
	require.Equal(t, "override.example", cfg.ServerName)
}

func TestOrDefault(t *testing.T) {
	require.Equal(t, uint16(tls.VersionTLS12), orDefault(0, tls.VersionTLS12))
	require.Equal(t, uint16(tls.VersionTLS13), orDefault(tls.VersionTLS13, tls.VersionTLS12))
}
