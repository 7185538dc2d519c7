// Copyright 2026 Digi Connect authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package push

import (
	"bytes"
	"compress/zlib"
	"testing"
)

// Scenario 1 from §8: handshake request wire bytes.
func TestEncodeConnectionRequest_WireBytes(t *testing.T) {
	got := EncodeConnectionRequest(ConnectionRequest{
		Username:  "u",
		Password:  "p",
		MonitorID: 9001,
	})

	want := []byte{
		0x00, 0x01, 0x00, 0x00, 0x00, 0x0C, // header: type=1, bodyLen=12
		0x00, 0x01, // version
		0x00, 0x01, 'u', // username len + bytes
		0x00, 0x01, 'p', // password len + bytes
		0x00, 0x00, 0x23, 0x29, // monitor id 9001
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestDecodeConnectionResponse_Success(t *testing.T) {
	wire := []byte{0x00, 0x02, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0xC8}
	var hdr [headerLen]byte
	copy(hdr[:], wire[:headerLen])
	msgType, bodyLen := DecodeHeader(hdr)
	if msgType != MessageConnectionResponse || bodyLen != 4 {
		t.Fatalf("unexpected header: type=%v bodyLen=%d", msgType, bodyLen)
	}
	resp, err := DecodeConnectionResponse(wire[headerLen:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != StatusOK {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
}

func TestDecodeConnectionResponse_AuthFailure(t *testing.T) {
	wire := []byte{0x00, 0x02, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x01, 0x93}
	resp, err := DecodeConnectionResponse(wire[headerLen:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != StatusUnauthorized {
		t.Fatalf("status = %d, want 403", resp.Status)
	}
}

// Scenario 3 from §8: uncompressed publish delivery.
func TestDecodePublish_Uncompressed(t *testing.T) {
	body := []byte{0x00, 0x2A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 'h', 'i'}
	pub, err := DecodePublish(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pub.BlockID != 42 {
		t.Fatalf("block id = %d, want 42", pub.BlockID)
	}
	if pub.Compression != CompressionNone {
		t.Fatalf("compression = %d, want 0", pub.Compression)
	}
	if string(pub.Payload) != "hi" {
		t.Fatalf("payload = %q, want %q", pub.Payload, "hi")
	}
}

// Scenario 4 from §8: gzip/zlib-compressed publish delivery.
func TestDecodePublish_ZlibCompressed(t *testing.T) {
	plaintext := []byte(`{"k":1}`)
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(plaintext); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("compress close: %v", err)
	}

	body := make([]byte, publishHeaderLen+compressed.Len())
	body[4] = byte(CompressionZlib)
	copy(body[publishHeaderLen:], compressed.Bytes())

	pub, err := DecodePublish(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(pub.Payload) != string(plaintext) {
		t.Fatalf("payload = %q, want %q", pub.Payload, plaintext)
	}
}

func TestDecodePublish_UnexpectedCompressionCode(t *testing.T) {
	body := make([]byte, publishHeaderLen)
	body[4] = 0x02
	if _, err := DecodePublish(body); err == nil {
		t.Fatal("expected error for unknown compression code")
	}
}

func TestDecodePublish_TruncatedBody(t *testing.T) {
	if _, err := DecodePublish(make([]byte, 4)); err == nil {
		t.Fatal("expected error for truncated body")
	}
}

func TestEncodeDecodePublishReceived_RoundTrip(t *testing.T) {
	wire := EncodePublishReceived(42)
	var hdr [headerLen]byte
	copy(hdr[:], wire[:headerLen])
	msgType, bodyLen := DecodeHeader(hdr)
	if msgType != MessagePublishReceived || bodyLen != 4 {
		t.Fatalf("unexpected header: type=%v bodyLen=%d", msgType, bodyLen)
	}
	ack, err := DecodePublishReceived(wire[headerLen:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.BlockID != 42 || ack.Status != StatusOK {
		t.Fatalf("got %+v", ack)
	}
}

func TestEncodeDecodePublish_RoundTrip(t *testing.T) {
	payload := []byte("round trip payload")
	wire := EncodePublish(7, payload)
	var hdr [headerLen]byte
	copy(hdr[:], wire[:headerLen])
	msgType, bodyLen := DecodeHeader(hdr)
	if msgType != MessagePublish {
		t.Fatalf("type = %v, want MessagePublish", msgType)
	}
	pub, err := DecodePublish(wire[headerLen : headerLen+int(bodyLen)])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pub.BlockID != 7 || string(pub.Payload) != string(payload) {
		t.Fatalf("got %+v", pub)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		msgType MessageType
		bodyLen uint32
	}{
		{MessageConnectionRequest, 15},
		{MessageConnectionResponse, 4},
		{MessagePublish, 65535},
		{MessagePublishReceived, 4},
	} {
		hdr := EncodeHeader(tc.msgType, tc.bodyLen)
		gotType, gotLen := DecodeHeader(hdr)
		if gotType != tc.msgType || gotLen != tc.bodyLen {
			t.Fatalf("round trip mismatch: got (%v, %d), want (%v, %d)", gotType, gotLen, tc.msgType, tc.bodyLen)
		}
	}
}
