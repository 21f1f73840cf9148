package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/fxamacker/cbor/v2"
)

const (
	// Version 1 stored the identifier behind a one-byte length.
	tokenFormatVersionV1      = 1
	tokenFormatVersionCurrent = 2
)

// CurrentSchemaVersion is the binary schema version written by [Encode].
const CurrentSchemaVersion = tokenFormatVersionCurrent

const (
	errorCodeNone    byte = 0
	errorCodeExpired byte = 1
	errorCodeRefresh byte = 2
)

// Codec serializes token records for a [Store].
type Codec interface {
	Encode(t *Token) ([]byte, error)
	Decode(data []byte) (*Token, error)
}

// BinaryCodec is the default compact codec.
type BinaryCodec struct{}

// Encode implements [Codec].
func (BinaryCodec) Encode(t *Token) ([]byte, error) { return Encode(t) }

// Decode implements [Codec].
func (BinaryCodec) Decode(data []byte) (*Token, error) { return Decode(data) }

// CBORCodec stores records as CBOR maps with integer keys.
type CBORCodec struct{}

type cborToken struct {
	Version      uint8  `cbor:"0,keyasint"`
	AccessToken  string `cbor:"1,keyasint,omitempty"`
	ExpiresAtMs  int64  `cbor:"2,keyasint,omitempty"`
	RefreshToken string `cbor:"3,keyasint,omitempty"`
	LastError    string `cbor:"4,keyasint,omitempty"`
	Identifier   string `cbor:"5,keyasint,omitempty"`
	CreatedAtMs  int64  `cbor:"6,keyasint,omitempty"`
	UpdatedAtMs  int64  `cbor:"7,keyasint,omitempty"`
}

// Encode implements [Codec].
func (CBORCodec) Encode(t *Token) ([]byte, error) {
	if t == nil {
		return nil, errors.New("nil token")
	}
	return cbor.Marshal(cborToken{
		Version:      tokenFormatVersionCurrent,
		AccessToken:  t.AccessToken,
		ExpiresAtMs:  t.AccessTokenExpiresAtMs,
		RefreshToken: t.RefreshToken,
		LastError:    string(t.LastError),
		Identifier:   t.Identifier,
		CreatedAtMs:  t.CreatedAtMs,
		UpdatedAtMs:  t.UpdatedAtMs,
	})
}

// Decode implements [Codec].
func (CBORCodec) Decode(data []byte) (*Token, error) {
	var raw cborToken
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Version != tokenFormatVersionCurrent {
		return nil, fmt.Errorf("unsupported session schema version %d", raw.Version)
	}
	code, err := parseErrorCode(raw.LastError)
	if err != nil {
		return nil, err
	}
	return &Token{
		AccessToken:            raw.AccessToken,
		AccessTokenExpiresAtMs: raw.ExpiresAtMs,
		RefreshToken:           raw.RefreshToken,
		LastError:              code,
		Identifier:             raw.Identifier,
		CreatedAtMs:            raw.CreatedAtMs,
		UpdatedAtMs:            raw.UpdatedAtMs,
	}, nil
}

// CodecFor resolves a codec by its configuration name ("binary" or "cbor").
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", "binary":
		return BinaryCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown session encoding %q", name)
	}
}

// Encode writes t in the current binary schema.
func Encode(t *Token) ([]byte, error) {
	if t == nil {
		return nil, errors.New("nil token")
	}
	var buf bytes.Buffer

	buf.WriteByte(tokenFormatVersionCurrent)

	code, err := encodeErrorCode(t.LastError)
	if err != nil {
		return nil, err
	}
	buf.WriteByte(code)

	if err := writeString16(&buf, t.AccessToken); err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, t.AccessTokenExpiresAtMs); err != nil {
		return nil, err
	}
	if err := writeString16(&buf, t.RefreshToken); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	if err := writeString16(&buf, t.Identifier); err != nil {
		return nil, fmt.Errorf("identifier: %w", err)
	}

	if err := binary.Write(&buf, binary.BigEndian, t.CreatedAtMs); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, t.UpdatedAtMs); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a binary record produced by [Encode].
func Decode(data []byte) (*Token, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenFormatVersionCurrent && version != tokenFormatVersionV1 {
		return nil, fmt.Errorf("unsupported session schema version %d", version)
	}

	t := &Token{}

	code, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if t.LastError, err = decodeErrorCode(code); err != nil {
		return nil, err
	}

	if t.AccessToken, err = readString16(reader); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &t.AccessTokenExpiresAtMs); err != nil {
		return nil, err
	}
	if t.RefreshToken, err = readString16(reader); err != nil {
		return nil, err
	}

	if version == tokenFormatVersionV1 {
		t.Identifier, err = readString8(reader)
	} else {
		t.Identifier, err = readString16(reader)
	}
	if err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &t.CreatedAtMs); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &t.UpdatedAtMs); err != nil {
		return nil, err
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session record")
	}

	return t, nil
}

func writeString16(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.New("value too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString16(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readString8(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeErrorCode(code ErrorCode) (byte, error) {
	switch code {
	case ErrorNone:
		return errorCodeNone, nil
	case ErrorSessionExpired:
		return errorCodeExpired, nil
	case ErrorRefreshAccessToken:
		return errorCodeRefresh, nil
	default:
		return 0, fmt.Errorf("unknown error code %q", code)
	}
}

func decodeErrorCode(b byte) (ErrorCode, error) {
	switch b {
	case errorCodeNone:
		return ErrorNone, nil
	case errorCodeExpired:
		return ErrorSessionExpired, nil
	case errorCodeRefresh:
		return ErrorRefreshAccessToken, nil
	default:
		return ErrorNone, fmt.Errorf("unknown error code byte %d", b)
	}
}

func parseErrorCode(s string) (ErrorCode, error) {
	code := ErrorCode(s)
	if _, err := encodeErrorCode(code); err != nil {
		return ErrorNone, err
	}
	return code, nil
}
