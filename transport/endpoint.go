// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// TrustPolicy controls server certificate verification.
type TrustPolicy byte

const (
	TrustSystemRoots TrustPolicy = iota
	TrustAll
	TrustRoots
	TrustCustomVerify
)

// TLSOptions mirrors the endpoint surface's tls knobs. Roots holds
// already-parsed certificates for TrustRoots; raw DER bytes are not
// accepted. CustomVerify is used for TrustCustomVerify.
// ClientCertificate is a pre-parsed identity + chain: PKCS#12 archives are
// not decoded here (no PKCS#12 library appears anywhere in the ecosystem
// this client draws from) - callers that start from a .p12 file decode it
// themselves and hand in the resulting tls.Certificate.
type TLSOptions struct {
	Trust             TrustPolicy
	Roots             []*x509.Certificate
	CustomVerify      func(rawCerts [][]byte, verified [][]*x509.Certificate) error
	ClientCertificate *tls.Certificate
	ServerName        string
	MinVersion        uint16 // tls.VersionTLS12 or tls.VersionTLS13
	MaxVersion        uint16
	SessionTickets    bool
}

func (o TLSOptions) build(defaultServerName string) *tls.Config {
	cfg := &tls.Config{
		ServerName:         o.ServerName,
		MinVersion:         orDefault(o.MinVersion, tls.VersionTLS12),
		MaxVersion:         orDefault(o.MaxVersion, tls.VersionTLS13),
		SessionTicketsDisabled: !o.SessionTickets,
	}
	if cfg.ServerName == "" {
		cfg.ServerName = defaultServerName
	}
	if o.ClientCertificate != nil {
		cfg.Certificates = []tls.Certificate{*o.ClientCertificate}
	}

	switch o.Trust {
	case TrustAll:
		cfg.InsecureSkipVerify = true
	case TrustRoots:
		pool := x509.NewCertPool()
		for _, c := range o.Roots {
			pool.AddCert(c)
		}
		cfg.RootCAs = pool
	case TrustCustomVerify:
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = o.CustomVerify
	}
	return cfg
}

func orDefault(v, def uint16) uint16 {
	if v == 0 {
		return def
	}
	return v
}

// TCPOptions covers the socket-level knobs common to every stream
// transport.
type TCPOptions struct {
	DialTimeout time.Duration
	KeepAlive   time.Duration
}

func (o TCPOptions) dialer() *net.Dialer {
	d := &net.Dialer{Timeout: o.DialTimeout, KeepAlive: o.KeepAlive}
	if d.Timeout == 0 {
		d.Timeout = 30 * time.Second
	}
	if d.KeepAlive == 0 {
		d.KeepAlive = 30 * time.Second
	}
	return d
}

// TCPEndpoint dials plain TCP. Default port 1883.
type TCPEndpoint struct {
	Host    string
	Port    int
	Options TCPOptions
}

func (e TCPEndpoint) addr() string {
	port := e.Port
	if port == 0 {
		port = 1883
	}
	return net.JoinHostPort(e.Host, fmt.Sprint(port))
}

func (e TCPEndpoint) Dial() (net.Conn, error) {
	return e.Options.dialer().Dial("tcp", e.addr())
}

// TLSEndpoint dials TCP-over-TLS. Default port 8883.
type TLSEndpoint struct {
	Host    string
	Port    int
	Options TCPOptions
	TLS     TLSOptions
}

func (e TLSEndpoint) addr() string {
	port := e.Port
	if port == 0 {
		port = 8883
	}
	return net.JoinHostPort(e.Host, fmt.Sprint(port))
}

func (e TLSEndpoint) Dial() (net.Conn, error) {
	rawDialer := e.Options.dialer()
	return tls.DialWithDialer(rawDialer, "tcp", e.addr(), e.TLS.build(e.Host))
}

// WSEndpoint dials MQTT-over-WebSocket. Default port 8083, path "/mqtt".
type WSEndpoint struct {
	Host    string
	Port    int
	Path    string
	Options TCPOptions
	Headers http.Header
}

func (e WSEndpoint) url(scheme string, defaultPort int) string {
	port := e.Port
	if port == 0 {
		port = defaultPort
	}
	path := e.Path
	if path == "" {
		path = "/mqtt"
	}
	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(e.Host, fmt.Sprint(port)), Path: path}
	return u.String()
}

// WSSEndpoint dials MQTT-over-WebSocket-over-TLS. Default port 8084.
type WSSEndpoint struct {
	Host    string
	Port    int
	Path    string
	Options TCPOptions
	Headers http.Header
	TLS     TLSOptions
}

// QUICEndpoint dials MQTT-over-QUIC. Default port 14567. ALPN is "mqtt".
// When pingEnabled, the caller overrides IdleTimeout to 1.5x keepAlive
// before calling Dial - this endpoint just carries the configured value.
type QUICEndpoint struct {
	Host       string
	Port       int
	IdleTimeout time.Duration
	TLS        TLSOptions
}

func (e QUICEndpoint) addr() string {
	port := e.Port
	if port == 0 {
		port = 14567
	}
	return net.JoinHostPort(e.Host, fmt.Sprint(port))
}
