// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// There is no external CA in this system: every session mints its own
// throwaway certificate, and the only thing either side trusts about a
// peer certificate is that its CommonName matches a tag derived from the
// PAKE-derived transport key both sides already share. See spec §4.D.

func tagFor(transportKey [32]byte) string {
	sum := sha256.Sum256(append([]byte("wormhole-cert-tag:"), transportKey[:]...))
	return hex.EncodeToString(sum[:16])
}

// newSessionCertificate mints a fresh self-signed certificate whose
// CommonName is the tag derived from transportKey.
func newSessionCertificate(transportKey [32]byte) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: generate session key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: generate serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: tagFor(transportKey)},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: create session certificate: %w", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}

// verifyPeerCertificate builds a tls.Config.VerifyPeerCertificate
// callback that accepts a peer's certificate only if its CommonName
// matches the tag derived from transportKey. Standard chain validation
// is skipped (InsecureSkipVerify is set alongside this callback) because
// there is no CA; this callback is the entire trust decision.
func verifyPeerCertificate(transportKey [32]byte) func([][]byte, [][]*x509.Certificate) error {
	want := tagFor(transportKey)
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("transport: peer presented no certificate")
		}
		cert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("transport: parse peer certificate: %w", err)
		}
		if cert.Subject.CommonName != want {
			return fmt.Errorf("transport: peer certificate tag mismatch")
		}
		return nil
	}
}

func tlsConfigFor(transportKey [32]byte, nextProto string) (*tls.Config, error) {
	cert, err := newSessionCertificate(transportKey)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:          []tls.Certificate{cert},
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifyPeerCertificate(transportKey),
		NextProtos:            []string{nextProto},
	}, nil
}
