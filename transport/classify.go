package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
)

// Kind is the coarse failure class of a transport error.
type Kind string

const (
	// KindTimeout covers deadline and cancellation failures.
	KindTimeout Kind = "timeout"
	// KindTLS covers certificate and TLS handshake failures.
	KindTLS Kind = "tls"
	// KindConnection covers everything else: DNS, refused connections,
	// resets mid-flight.
	KindConnection Kind = "connection"
)

// Classify maps a transport-layer error onto its failure class so callers
// can report a distinguishable error kind without string matching.
func Classify(err error) Kind {
	if err == nil {
		return KindConnection
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var certVerify *tls.CertificateVerificationError
	if errors.As(err, &certVerify) {
		return KindTLS
	}
	var recordHeader tls.RecordHeaderError
	if errors.As(err, &recordHeader) {
		return KindTLS
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return KindTLS
	}
	var hostname x509.HostnameError
	if errors.As(err, &hostname) {
		return KindTLS
	}
	return KindConnection
}
