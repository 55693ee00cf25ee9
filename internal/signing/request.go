// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package signing

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"net/url"
	"time"

	"github.com/xbltracker/xbltracker/internal/codec"
	"github.com/xbltracker/xbltracker/internal/xerrors"
)

// signaturePolicyVersion is the Xbox SignPolicy version. Version 1 signs
// method, path+query, authorization header, and body.
const signaturePolicyVersion = uint32(1)

// SignRequest produces the value of the `signature` header for a signed
// Xbox POST request.
//
// The ECDSA signature covers, in order: the 32-bit policy version, the
// 64-bit Windows FILETIME timestamp, then NUL-terminated method,
// path+query, authorization header value, and body. The header value is
// the base64 of version || filetime || signature so the service can
// recover the signed timestamp.
func (k *Keypair) SignRequest(requestURL, authorization string, body []byte, ts time.Time) (string, error) {
	if !k.CanSign() {
		return "", xerrors.New(xerrors.KindCrypto, "sign request", "keypair has no private scalar")
	}

	u, err := url.Parse(requestURL)
	if err != nil {
		return "", xerrors.Wrap(xerrors.KindCrypto, "sign request", err)
	}
	pathAndQuery := u.EscapedPath()
	if u.RawQuery != "" {
		pathAndQuery += "?" + u.RawQuery
	}

	filetime := codec.Filetime(ts)

	var prefix [12]byte
	binary.BigEndian.PutUint32(prefix[0:4], signaturePolicyVersion)
	binary.BigEndian.PutUint64(prefix[4:12], filetime)

	h := sha256.New()
	h.Write(prefix[:])
	h.Write([]byte{0})
	// Every signed Xbox auth request is a POST.
	h.Write([]byte("POST"))
	h.Write([]byte{0})
	h.Write([]byte(pathAndQuery))
	h.Write([]byte{0})
	h.Write([]byte(authorization))
	h.Write([]byte{0})
	h.Write(body)
	h.Write([]byte{0})

	r, s, err := ecdsa.Sign(rand.Reader, k.priv, h.Sum(nil))
	if err != nil {
		return "", xerrors.Wrap(xerrors.KindCrypto, "sign request", err)
	}

	sig := make([]byte, 12+2*coordinateSize)
	copy(sig[0:12], prefix[:])
	r.FillBytes(sig[12 : 12+coordinateSize])
	s.FillBytes(sig[12+coordinateSize:])

	return codec.Base64(sig), nil
}

// Verify checks a signature header produced by SignRequest against this
// key's public half. Used by tests to close the sign/verify round trip.
func (k *Keypair) Verify(requestURL, authorization string, body []byte, header string) bool {
	raw, err := codec.Base64Decode(header)
	if err != nil || len(raw) != 12+2*coordinateSize {
		return false
	}
	if binary.BigEndian.Uint32(raw[0:4]) != signaturePolicyVersion {
		return false
	}

	u, err := url.Parse(requestURL)
	if err != nil {
		return false
	}
	pathAndQuery := u.EscapedPath()
	if u.RawQuery != "" {
		pathAndQuery += "?" + u.RawQuery
	}

	h := sha256.New()
	h.Write(raw[0:12])
	h.Write([]byte{0})
	h.Write([]byte("POST"))
	h.Write([]byte{0})
	h.Write([]byte(pathAndQuery))
	h.Write([]byte{0})
	h.Write([]byte(authorization))
	h.Write([]byte{0})
	h.Write(body)
	h.Write([]byte{0})

	r := new(big.Int).SetBytes(raw[12 : 12+coordinateSize])
	s := new(big.Int).SetBytes(raw[12+coordinateSize:])
	return ecdsa.Verify(&k.priv.PublicKey, h.Sum(nil), r, s)
}
