// Package network wires the TLS-terminated TCP listener and the
// per-connection handler that feeds the wire codec into the broker's
// Subscription Router.
package network

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/cockroachdb/errors"
)

// ErrInvalidTLSConfig means a certificate/key pair was not supplied.
var ErrInvalidTLSConfig = errors.New("network: server certificate and key are required")

// TLSConfig describes the broker's TLS identity and, optionally, mutual
// TLS requirements.
type TLSConfig struct {
	CertFile  string
	KeyFile   string
	CAFile    string
	MutualTLS bool
}

// Build loads the certificate/key pair and, if CAFile is set, the CA
// bundle used to verify client certificates. TLS 1.3 only — this broker
// has no legacy client to support.
func (tc *TLSConfig) Build() (*tls.Config, error) {
	if tc.CertFile == "" || tc.KeyFile == "" {
		return nil, ErrInvalidTLSConfig
	}

	cert, err := tls.LoadX509KeyPair(tc.CertFile, tc.KeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "network: load server certificate")
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		ClientAuth:   tls.NoClientCert,
	}

	if tc.CAFile != "" {
		caCert, err := os.ReadFile(tc.CAFile)
		if err != nil {
			return nil, errors.Wrap(err, "network: read CA bundle")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("network: failed to parse CA bundle")
		}
		cfg.ClientCAs = pool
	}

	if tc.MutualTLS {
		if cfg.ClientCAs == nil {
			return nil, errors.New("network: mutual TLS requires a CA bundle")
		}
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, nil
}
