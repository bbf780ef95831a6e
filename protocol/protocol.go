// Package protocol implements the binary frame format the TCP transport
// uses between an out-of-process host and its UI-side clients.
//
// It solves TCP's sticky packet problem with a fixed 13-byte header followed
// by a variable-length body. The receiver reads the header first to learn
// the body length, then reads exactly that many bytes.
//
// Frame format:
//
//	0      3  4  5         9         13
//	┌──────┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ft│   seq   │ bodyLen │    body ...   │
//	│ hbr  │01│  │ uint32  │ uint32  │ bodyLen bytes │
//	└──────┴──┴──┴─────────┴─────────┴───────────────┘
//
// A message frame's body is the channel name (uint16 length prefix) followed
// by the channel payload. A reply frame's body is the raw reply payload —
// the zero-length body is itself meaningful ("not implemented") and travels
// as bodyLen 0. Heartbeat frames have no body.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "hbr". Used to reject non-protocol connections
// (e.g. an HTTP client hitting the wrong port) on the first read.
const (
	MagicByte1 byte = 0x68 // 'h'
	MagicByte2 byte = 0x62 // 'b'
	MagicByte3 byte = 0x72 // 'r'
	Version    byte = 0x01
	HeaderSize int  = 13 // 3 (magic) + 1 (version) + 1 (frameType) + 4 (seq) + 4 (bodyLen)
)

// MaxBodyLen caps a frame body. The length field is attacker-controlled on
// a raw socket; without a cap a single bogus header could demand a 4 GiB
// allocation.
const MaxBodyLen = 64 << 20

// FrameType distinguishes message, reply, and heartbeat frames.
type FrameType byte

const (
	FrameMessage   FrameType = 0 // Channel message, expects a reply frame with the same seq
	FrameReply     FrameType = 1 // Reply to a previously received message frame
	FrameHeartbeat FrameType = 2 // KeepAlive probe (no body)
)

// Header is the fixed 13-byte frame header.
type Header struct {
	Type    FrameType // Message, Reply, or Heartbeat
	Seq     uint32    // Correlates a reply with its message, whatever the completion order
	BodyLen uint32    // Body length in bytes
}

// Encode writes a complete frame (header + body) to w. The caller must hold
// a write lock if multiple goroutines share the same writer, otherwise
// frames from different calls will interleave and corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize)
	copy(buf[0:3], []byte{MagicByte1, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = byte(h.Type)
	binary.BigEndian.PutUint32(buf[5:9], h.Seq)
	binary.BigEndian.PutUint32(buf[9:13], h.BodyLen)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	// Body may be nil for heartbeat frames
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// Decode reads one complete frame from r, validating magic, version, frame
// type, and body length. io.ReadFull guarantees exactly N bytes per read,
// so partial reads never skew the frame boundary.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicByte1 || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	frameType := headerBuf[4]
	if frameType != byte(FrameMessage) && frameType != byte(FrameReply) && frameType != byte(FrameHeartbeat) {
		return nil, nil, fmt.Errorf("unsupported frame type: %d", frameType)
	}

	seq := binary.BigEndian.Uint32(headerBuf[5:9])
	bodyLen := binary.BigEndian.Uint32(headerBuf[9:13])
	if bodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("frame body too large: %d bytes", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		Type:    FrameType(frameType),
		Seq:     seq,
		BodyLen: bodyLen,
	}, body, nil
}

// EncodeMessageBody prefixes the channel name to the payload for a message
// frame: uint16 big-endian name length, name bytes, payload.
func EncodeMessageBody(channel string, payload []byte) ([]byte, error) {
	if len(channel) > 0xffff {
		return nil, fmt.Errorf("channel name too long: %d bytes", len(channel))
	}
	body := make([]byte, 2+len(channel)+len(payload))
	binary.BigEndian.PutUint16(body[0:2], uint16(len(channel)))
	copy(body[2:], channel)
	copy(body[2+len(channel):], payload)
	return body, nil
}

// DecodeMessageBody splits a message frame body back into channel name and
// payload. The payload is a fresh copy, safe to hold after the frame buffer
// is reused.
func DecodeMessageBody(body []byte) (string, []byte, error) {
	if len(body) < 2 {
		return "", nil, fmt.Errorf("message body too short: %d bytes", len(body))
	}
	nameLen := int(binary.BigEndian.Uint16(body[0:2]))
	if len(body) < 2+nameLen {
		return "", nil, fmt.Errorf("message body shorter than channel name: %d < %d", len(body)-2, nameLen)
	}
	channel := string(body[2 : 2+nameLen])
	payload := make([]byte, len(body)-2-nameLen)
	copy(payload, body[2+nameLen:])
	return channel, payload, nil
}
