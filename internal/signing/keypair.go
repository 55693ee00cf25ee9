// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package signing implements the proof-of-possession cryptography the Xbox
// device and SISU endpoints require: a P-256 keypair serialized as a JWK
// ProofKey, and ECDSA request signatures binding URL, body, and timestamp.
package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"math/big"

	"github.com/goccy/go-json"

	"github.com/xbltracker/xbltracker/internal/codec"
	"github.com/xbltracker/xbltracker/internal/xerrors"
)

// coordinateSize is the byte length of a P-256 coordinate or scalar.
const coordinateSize = 32

// Keypair wraps a P-256 private key. The public half travels as the
// ProofKey JWK; the private half signs requests and never leaves the
// process except through MarshalJWK(true) for state persistence.
type Keypair struct {
	priv *ecdsa.PrivateKey
}

// jwk is the JSON Web Key wire form for a P-256 key.
type jwk struct {
	Alg string `json:"alg,omitempty"`
	Crv string `json:"crv"`
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	X   string `json:"x"`
	Y   string `json:"y"`
	D   string `json:"d,omitempty"`
}

// GenerateKeypair creates a fresh P-256 keypair.
func GenerateKeypair() (*Keypair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindCrypto, "generate keypair", err)
	}
	return &Keypair{priv: priv}, nil
}

// MarshalJWK serializes the key as a JWK JSON document. With
// includePrivate false the result is the public ProofKey sent to Xbox;
// with true it additionally carries the d scalar for state persistence.
func (k *Keypair) MarshalJWK(includePrivate bool) (string, error) {
	w := jwk{
		Alg: "ES256",
		Crv: "P-256",
		Kty: "EC",
		Use: "sig",
		X:   codec.Base64URL(padCoordinate(k.priv.PublicKey.X)),
		Y:   codec.Base64URL(padCoordinate(k.priv.PublicKey.Y)),
	}
	if includePrivate {
		w.D = codec.Base64URL(padCoordinate(k.priv.D))
	}

	data, err := json.Marshal(w)
	if err != nil {
		return "", xerrors.Wrap(xerrors.KindCrypto, "marshal jwk", err)
	}
	return string(data), nil
}

// ProofKey returns the public JWK as a plain map for embedding into
// signed request bodies.
func (k *Keypair) ProofKey() map[string]string {
	return map[string]string{
		"alg": "ES256",
		"crv": "P-256",
		"kty": "EC",
		"use": "sig",
		"x":   codec.Base64URL(padCoordinate(k.priv.PublicKey.X)),
		"y":   codec.Base64URL(padCoordinate(k.priv.PublicKey.Y)),
	}
}

// ParseJWK reconstructs a Keypair from a JWK produced by MarshalJWK.
// A JWK without the private scalar yields a verify-only key; SignRequest
// on such a key fails.
func ParseJWK(data string) (*Keypair, error) {
	var w jwk
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, xerrors.Wrap(xerrors.KindCrypto, "parse jwk", err)
	}
	if w.Kty != "EC" || w.Crv != "P-256" {
		return nil, xerrors.New(xerrors.KindCrypto, "parse jwk", "unsupported key type %s/%s", w.Kty, w.Crv)
	}

	x, err := codec.Base64URLDecode(w.X)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindCrypto, "parse jwk x", err)
	}
	y, err := codec.Base64URLDecode(w.Y)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindCrypto, "parse jwk y", err)
	}

	priv := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		},
	}

	if w.D != "" {
		d, err := codec.Base64URLDecode(w.D)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindCrypto, "parse jwk d", err)
		}
		priv.D = new(big.Int).SetBytes(d)
	}

	if !priv.PublicKey.Curve.IsOnCurve(priv.PublicKey.X, priv.PublicKey.Y) {
		return nil, xerrors.New(xerrors.KindCrypto, "parse jwk", "point not on curve")
	}

	return &Keypair{priv: priv}, nil
}

// CanSign reports whether the key carries the private scalar.
func (k *Keypair) CanSign() bool {
	return k.priv.D != nil && k.priv.D.Sign() != 0
}

// padCoordinate left-pads a big.Int to the fixed P-256 width. JWK
// coordinates are fixed-length; big.Int.Bytes() drops leading zeros.
func padCoordinate(v *big.Int) []byte {
	buf := make([]byte, coordinateSize)
	v.FillBytes(buf)
	return buf
}
