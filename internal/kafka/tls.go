// Package kafka holds helpers shared by the consumer and producer.
package kafka

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
)

// NewTLSConfig builds a client TLS configuration from PEM encoded certificate
// and key material. Literal "\n" sequences are accepted so the values can be
// passed through single line environment variables.
func NewTLSConfig(certPEM, keyPEM string) (*tls.Config, error) {
	if certPEM == "" || keyPEM == "" {
		return nil, errors.New("kafka: client certificate and key are both required")
	}
	cert, err := tls.X509KeyPair([]byte(unescape(certPEM)), []byte(unescape(keyPEM)))
	if err != nil {
		return nil, fmt.Errorf("kafka: load client certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func unescape(pem string) string {
	return strings.ReplaceAll(pem, `\n`, "\n")
}
