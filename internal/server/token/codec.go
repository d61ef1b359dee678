// Package token encodes and verifies the compact three-segment tokens handed
// to the mobile client:
//
//	base64url(header) "." base64url(payload) "." base64url(hmac_sha256)
//
// The codec is pure. It never looks at the clock; expiry is the caller's
// business.
package token

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Header is fixed for every token this service issues.
type Header struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
}

// Payload identifies the subject and the moment the token stops being valid.
type Payload struct {
	UserID int64 `json:"user_id"`
	Exp    int64 `json:"exp"`
}

var (
	method = jwt.SigningMethodHS256

	// segments decodes base64url with or without trailing padding. Strict
	// decoding rejects non-zero trailing bits, so every altered character of
	// a segment changes the decoded bytes.
	segments = jwt.NewParser(jwt.WithPaddingAllowed(), jwt.WithStrictDecoding())

	encodedHeader = mustEncodeHeader()
)

func mustEncodeHeader() string {
	b, err := json.Marshal(Header{Algorithm: method.Alg(), Type: "JWT"})
	if err != nil {
		panic(err)
	}
	return encodeSegment(b)
}

func encodeSegment(b []byte) string {
	return new(jwt.Token).EncodeSegment(b)
}

// Encode signs payload with secret. The same inputs always yield the same token.
func Encode(payload Payload, secret []byte) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	signingString := encodedHeader + "." + encodeSegment(body)

	sig, err := method.Sign(signingString, secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signingString + "." + encodeSegment(sig), nil
}

// DecodeAndVerify checks the signature of raw under secret and returns its payload.
//
// The MAC is recomputed over the first two segments exactly as received and
// compared in constant time before anything is parsed, so a tampered header
// or payload is reported as common.ErrBadSignature. Structural problems
// yield common.ErrMalformedToken.
func DecodeAndVerify(raw string, secret []byte) (Payload, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Payload{}, common.ErrMalformedToken
	}

	sig, err := segments.DecodeSegment(parts[2])
	if err != nil {
		return Payload{}, common.ErrBadSignature
	}

	if err := method.Verify(parts[0]+"."+parts[1], sig, secret); err != nil {
		return Payload{}, common.ErrBadSignature
	}

	if err := checkHeader(parts[0]); err != nil {
		return Payload{}, err
	}

	return decodePayload(parts[1])
}

func checkHeader(seg string) error {
	b, err := segments.DecodeSegment(seg)
	if err != nil {
		return common.ErrMalformedToken
	}
	var h Header
	if err := json.Unmarshal(b, &h); err != nil {
		return common.ErrMalformedToken
	}
	if h.Algorithm != method.Alg() {
		return common.ErrMalformedToken
	}
	return nil
}

func decodePayload(seg string) (Payload, error) {
	b, err := segments.DecodeSegment(seg)
	if err != nil {
		return Payload{}, common.ErrMalformedToken
	}

	var wire struct {
		UserID *int64 `json:"user_id"`
		Exp    *int64 `json:"exp"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return Payload{}, common.ErrMalformedToken
	}
	if dec.More() {
		return Payload{}, common.ErrMalformedToken
	}
	if wire.UserID == nil || *wire.UserID <= 0 || wire.Exp == nil {
		return Payload{}, common.ErrMalformedToken
	}

	return Payload{UserID: *wire.UserID, Exp: *wire.Exp}, nil
}
