// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// MessageType identifies one of the four frames exchanged on a Push
// session socket. All integers on the wire are big-endian.
type MessageType uint16

const (
	// MessageConnectionRequest is sent client -> server to open a session.
	MessageConnectionRequest MessageType = 0x0001
	// MessageConnectionResponse is sent server -> client to answer a handshake.
	MessageConnectionResponse MessageType = 0x0002
	// MessagePublish carries one batch of events server -> client.
	MessagePublish MessageType = 0x0003
	// MessagePublishReceived is the client -> server acknowledgement of MessagePublish.
	MessagePublishReceived MessageType = 0x0004
)

func (t MessageType) String() string {
	switch t {
	case MessageConnectionRequest:
		return "ConnectionRequest"
	case MessageConnectionResponse:
		return "ConnectionResponse"
	case MessagePublish:
		return "PublishMessage"
	case MessagePublishReceived:
		return "PublishMessageReceived"
	default:
		return fmt.Sprintf("MessageType(0x%04x)", uint16(t))
	}
}

// Compression codes used in the PublishMessage body.
const (
	CompressionNone Compression = 0x00
	CompressionZlib Compression = 0x01
)

// Compression identifies how a PublishMessage payload is encoded on the wire.
type Compression byte

// Status codes carried in ConnectionResponse and PublishMessageReceived bodies.
const (
	StatusOK           uint16 = 200
	StatusBadRequest   uint16 = 400
	StatusUnauthorized uint16 = 403
)

// headerLen is the size in bytes of the frame header shared by every
// message: a 2-byte type and a 4-byte body length, both big-endian.
const headerLen = 6

// protocolVersion is the only ConnectionRequest wire version this client speaks.
const protocolVersion uint16 = 0x0001

// EncodeHeader returns the 6-byte wire header for a frame of the given
// type carrying a body of bodyLen bytes.
func EncodeHeader(t MessageType, bodyLen uint32) [headerLen]byte {
	var h [headerLen]byte
	binary.BigEndian.PutUint16(h[0:2], uint16(t))
	binary.BigEndian.PutUint32(h[2:6], bodyLen)
	return h
}

// DecodeHeader parses a 6-byte wire header.
func DecodeHeader(h [headerLen]byte) (t MessageType, bodyLen uint32) {
	return MessageType(binary.BigEndian.Uint16(h[0:2])), binary.BigEndian.Uint32(h[2:6])
}

// ConnectionRequest is the client -> server handshake frame.
type ConnectionRequest struct {
	Username  string
	Password  string
	MonitorID uint32
}

// EncodeConnectionRequest serializes a full ConnectionRequest frame
// (header + body).
func EncodeConnectionRequest(r ConnectionRequest) []byte {
	body := new(bytes.Buffer)
	var versionBuf [2]byte
	binary.BigEndian.PutUint16(versionBuf[:], protocolVersion)
	body.Write(versionBuf[:])

	writeLenPrefixed(body, []byte(r.Username))
	writeLenPrefixed(body, []byte(r.Password))

	var monIDBuf [4]byte
	binary.BigEndian.PutUint32(monIDBuf[:], r.MonitorID)
	body.Write(monIDBuf[:])

	header := EncodeHeader(MessageConnectionRequest, uint32(body.Len()))
	out := make([]byte, 0, headerLen+body.Len())
	out = append(out, header[:]...)
	out = append(out, body.Bytes()...)
	return out
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

// ConnectionResponse is the server -> client handshake reply. The body is
// always 4 bytes: 2 reserved bytes (ignored) followed by a 2-byte status.
type ConnectionResponse struct {
	Status uint16
}

// DecodeConnectionResponse parses the 4-byte body of a ConnectionResponse frame.
func DecodeConnectionResponse(body []byte) (ConnectionResponse, error) {
	if len(body) != 4 {
		return ConnectionResponse{}, fmt.Errorf("%w: connection response body length %d, want 4", ErrProtocol, len(body))
	}
	return ConnectionResponse{Status: binary.BigEndian.Uint16(body[2:4])}, nil
}

// EncodeConnectionResponse serializes a full ConnectionResponse frame, used by tests
// and by any in-process fake server.
func EncodeConnectionResponse(status uint16) []byte {
	header := EncodeHeader(MessageConnectionResponse, 4)
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[2:4], status)
	return append(header[:], body...)
}

// publishHeaderLen is the size of the fixed PublishMessage body prefix that
// precedes the payload: block id (2) + reserved (2) + compression (1) + reserved (5).
const publishHeaderLen = 10

// Publish is a decoded PublishMessage: a block id, its compression code,
// and its (already-inflated) payload.
type Publish struct {
	BlockID     uint16
	Compression Compression
	Payload     []byte
}

// DecodePublish parses a PublishMessage body and inflates the payload if
// Compression is CompressionZlib. body must be exactly bodyLen bytes as
// announced by the frame header.
func DecodePublish(body []byte) (Publish, error) {
	if len(body) < publishHeaderLen {
		return Publish{}, fmt.Errorf("%w: publish body length %d shorter than header %d", ErrProtocol, len(body), publishHeaderLen)
	}
	blockID := binary.BigEndian.Uint16(body[0:2])
	compression := Compression(body[4])
	raw := body[publishHeaderLen:]

	switch compression {
	case CompressionNone:
		payload := make([]byte, len(raw))
		copy(payload, raw)
		return Publish{BlockID: blockID, Compression: compression, Payload: payload}, nil
	case CompressionZlib:
		payload, err := inflateZlib(raw)
		if err != nil {
			return Publish{}, fmt.Errorf("%w: inflating publish payload: %v", ErrProtocol, err)
		}
		return Publish{BlockID: blockID, Compression: compression, Payload: payload}, nil
	default:
		return Publish{}, fmt.Errorf("%w: unexpected compression code 0x%02x", ErrProtocol, byte(compression))
	}
}

func inflateZlib(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// EncodePublish serializes a full PublishMessage frame with an
// uncompressed payload. Used by tests and by any in-process fake server.
func EncodePublish(blockID uint16, payload []byte) []byte {
	body := make([]byte, publishHeaderLen+len(payload))
	binary.BigEndian.PutUint16(body[0:2], blockID)
	// body[2:4] reserved, body[4] = CompressionNone, body[5:10] reserved.
	copy(body[publishHeaderLen:], payload)
	header := EncodeHeader(MessagePublish, uint32(len(body)))
	return append(header[:], body...)
}

// PublishReceived is the client -> server acknowledgement of one block id.
type PublishReceived struct {
	BlockID uint16
	Status  uint16
}

// EncodePublishReceived serializes a full PublishMessageReceived frame.
func EncodePublishReceived(blockID uint16) []byte {
	header := EncodeHeader(MessagePublishReceived, 4)
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:2], blockID)
	binary.BigEndian.PutUint16(body[2:4], StatusOK)
	return append(header[:], body...)
}

// DecodePublishReceived parses the 4-byte body of a PublishMessageReceived
// frame. Exposed for symmetry and for any fake server used in tests.
func DecodePublishReceived(body []byte) (PublishReceived, error) {
	if len(body) != 4 {
		return PublishReceived{}, fmt.Errorf("%w: publish-received body length %d, want 4", ErrProtocol, len(body))
	}
	return PublishReceived{
		BlockID: binary.BigEndian.Uint16(body[0:2]),
		Status:  binary.BigEndian.Uint16(body[2:4]),
	}, nil
}
