package protect

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Update packets are two frames back to back: an action frame describing
// the change and a data frame with the changed fields. Every frame starts
// with an 8 byte header:
//
//	0    frame type (1 action, 2 payload)
//	1    payload format (1 JSON, 2 UTF-8 string, 3 raw buffer)
//	2    deflated (0 or 1)
//	3    reserved
//	4-7  payload size, big endian
const (
	headerSize = 8

	frameAction  byte = 1
	framePayload byte = 2

	formatJSON   byte = 1
	formatString byte = 2
	formatBuffer byte = 3
)

var ErrInvalidPacket = errors.New("invalid update packet")

type Action struct {
	Action      string `json:"action"`
	NewUpdateID string `json:"newUpdateId"`
	ModelKey    string `json:"modelKey"`
	ID          string `json:"id"`
}

type Packet struct {
	Action  Action
	Format  byte
	Payload []byte
}

// cameraUpdate holds the subset of camera fields carried by partial updates.
// Absent fields stay nil.
type cameraUpdate struct {
	Name             *string `json:"name,omitempty"`
	IsMotionDetected *bool   `json:"isMotionDetected,omitempty"`
	IsSmartDetected  *bool   `json:"isSmartDetected,omitempty"`
}

type frame struct {
	kind   byte
	format byte
	body   []byte
}

func DecodePacket(data []byte) (*Packet, error) {
	head, n, err := readFrame(data)
	if err != nil {
		return nil, fmt.Errorf("action frame: %w", err)
	}
	if head.kind != frameAction || head.format != formatJSON {
		return nil, fmt.Errorf("%w: unexpected action frame type %d format %d", ErrInvalidPacket, head.kind, head.format)
	}

	var action Action
	if err := json.Unmarshal(head.body, &action); err != nil {
		return nil, fmt.Errorf("%w: action: %v", ErrInvalidPacket, err)
	}

	body, _, err := readFrame(data[n:])
	if err != nil {
		return nil, fmt.Errorf("data frame: %w", err)
	}
	if body.kind != framePayload {
		return nil, fmt.Errorf("%w: unexpected data frame type %d", ErrInvalidPacket, body.kind)
	}

	return &Packet{Action: action, Format: body.format, Payload: body.body}, nil
}

func readFrame(data []byte) (frame, int, error) {
	if len(data) < headerSize {
		return frame{}, 0, fmt.Errorf("%w: short header (%d bytes)", ErrInvalidPacket, len(data))
	}

	size := int(binary.BigEndian.Uint32(data[4:headerSize]))
	end := headerSize + size
	if size < 0 || len(data) < end {
		return frame{}, 0, fmt.Errorf("%w: frame wants %d bytes, have %d", ErrInvalidPacket, size, len(data)-headerSize)
	}

	body := data[headerSize:end]
	if data[2] == 1 {
		r, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return frame{}, 0, fmt.Errorf("%w: inflate: %v", ErrInvalidPacket, err)
		}
		inflated, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return frame{}, 0, fmt.Errorf("%w: inflate: %v", ErrInvalidPacket, err)
		}
		body = inflated
	}

	return frame{kind: data[0], format: data[1], body: body}, end, nil
}

// EncodePacket builds a packet in the same layout DecodePacket reads.
func EncodePacket(action Action, payload any, deflate bool) ([]byte, error) {
	head, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeFrame(&buf, frameAction, formatJSON, head, deflate); err != nil {
		return nil, err
	}
	if err := writeFrame(&buf, framePayload, formatJSON, body, deflate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFrame(buf *bytes.Buffer, kind, format byte, body []byte, deflate bool) error {
	var deflated byte
	if deflate {
		var z bytes.Buffer
		w := zlib.NewWriter(&z)
		if _, err := w.Write(body); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		body = z.Bytes()
		deflated = 1
	}

	header := make([]byte, headerSize)
	header[0] = kind
	header[1] = format
	header[2] = deflated
	binary.BigEndian.PutUint32(header[4:], uint32(len(body)))
	buf.Write(header)
	buf.Write(body)
	return nil
}
