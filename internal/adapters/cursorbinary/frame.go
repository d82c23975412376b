package cursorbinary

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"

	"github.com/ccrelay/ccrelay/internal/apperr"
)

// Frame flags. 0x00 is a raw (uncompressed) payload; 0x01-0x03 all mean the
// payload is gzip'd (the backend uses distinct flag values for message
// kinds, but all three share the same compression treatment on decode).
const (
	FlagRaw       = 0x00
	FlagGzipText  = 0x01
	FlagGzipEvent = 0x02
	FlagGzipError = 0x03
)

// Frame is one length-prefixed unit of a binary request/response body:
// a one-byte flag, a 4-byte big-endian payload length, then the payload.
type Frame struct {
	Flag    byte
	Payload []byte
}

func isGzipFlag(flag byte) bool {
	return flag == 0x01 || flag == 0x02 || flag == 0x03
}

// EncodeFrame gzips the payload when flag is one of the 0x01-0x03
// compressed flags, then prefixes it with flag byte + 4-byte length.
func EncodeFrame(flag byte, payload []byte) ([]byte, error) {
	body := payload
	if isGzipFlag(flag) {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, apperr.Wrap(apperr.Transport, "gzip frame payload", err)
		}
		if err := w.Close(); err != nil {
			return nil, apperr.Wrap(apperr.Transport, "close gzip writer", err)
		}
		body = buf.Bytes()
	}
	out := make([]byte, 0, 5+len(body))
	out = append(out, flag)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(body)))
	out = append(out, lenBuf...)
	out = append(out, body...)
	return out, nil
}

// DecodeFrames parses every frame out of a full body, decompressing any
// gzip-flagged payload back to its original bytes.
func DecodeFrames(data []byte) ([]Frame, error) {
	var frames []Frame
	r := bytes.NewReader(data)
	for {
		flag, err := r.ReadByte()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.ContractViolation, "read frame flag", err)
		}
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBuf); err != nil {
			return nil, apperr.Wrap(apperr.ContractViolation, "read frame length", err)
		}
		n := binary.BigEndian.Uint32(lenBuf)
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, apperr.Wrap(apperr.ContractViolation, "read frame payload", err)
		}
		if isGzipFlag(flag) {
			gr, err := gzip.NewReader(bytes.NewReader(payload))
			if err != nil {
				return nil, apperr.Wrap(apperr.ContractViolation, "open gzip frame", err)
			}
			decoded, err := io.ReadAll(gr)
			gr.Close()
			if err != nil {
				return nil, apperr.Wrap(apperr.ContractViolation, "decompress gzip frame", err)
			}
			payload = decoded
		}
		frames = append(frames, Frame{Flag: flag, Payload: payload})
	}
}
