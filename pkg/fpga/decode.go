package fpga

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sugawarayuuta/sonnet"
)

// Decode and frame errors.
var (
	ErrPayloadNotUTF8      = errors.New("FPGA DMA payload is not valid UTF-8")
	ErrEmptySignature      = errors.New("FPGA DMA frame contains empty signature")
	ErrInvalidHasError     = errors.New("FPGA DMA frame has invalid has_error flag")
	ErrMissingSignature    = errors.New("FPGA DMA frame missing signature field")
	ErrMissingLogs         = errors.New("FPGA DMA frame does not contain logs")
	ErrFrameNotJSON        = errors.New("FPGA external frame is not valid JSON")
	ErrFrameMissingPayload = errors.New("FPGA external frame must include either payload or payload_base64")
	ErrFrameInvalidBase64  = errors.New("FPGA external frame payload_base64 is invalid")
)

// Frame is one DMA transfer: raw payload bytes plus the card's timestamp.
type Frame struct {
	HardwareTimestampNs uint64
	Payload             []byte
}

// DecodedPayload is the content of a DMA payload.
type DecodedPayload struct {
	Signature string
	Logs      []string
	HasError  bool
}

// DecodeDMAPayload parses the line-oriented DMA wire format:
//
//	signature=<sig>
//	has_error=<bool>
//	log=<line>
//	log=<line>
//
// Unknown lines are ignored.
func DecodeDMAPayload(payload []byte) (DecodedPayload, error) {
	if !utf8.Valid(payload) {
		return DecodedPayload{}, ErrPayloadNotUTF8
	}

	var (
		out       DecodedPayload
		signature string
		sawSig    bool
	)
	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, "signature="):
			signature = strings.TrimSpace(strings.TrimPrefix(line, "signature="))
			if signature == "" {
				return DecodedPayload{}, ErrEmptySignature
			}
			sawSig = true
		case strings.HasPrefix(line, "has_error="):
			v, ok := parseFlag(strings.TrimPrefix(line, "has_error="))
			if !ok {
				return DecodedPayload{}, ErrInvalidHasError
			}
			out.HasError = v
		case strings.HasPrefix(line, "log="):
			out.Logs = append(out.Logs, strings.TrimPrefix(line, "log="))
		}
	}
	if !sawSig {
		return DecodedPayload{}, ErrMissingSignature
	}
	if len(out.Logs) == 0 {
		return DecodedPayload{}, ErrMissingLogs
	}
	out.Signature = signature
	return out, nil
}

func parseFlag(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// EncodeDMAPayload renders the wire format DecodeDMAPayload reads.
func EncodeDMAPayload(signature string, hasError bool, logs []string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "signature=%s\n", signature)
	if hasError {
		b.WriteString("has_error=1\n")
	} else {
		b.WriteString("has_error=0\n")
	}
	for _, l := range logs {
		fmt.Fprintf(&b, "log=%s\n", l)
	}
	return b.Bytes()
}

// externalFrame is the JSON shape written by an external DMA bridge.
type externalFrame struct {
	HardwareTimestampNs *uint64 `json:"hardware_timestamp_ns"`
	Payload             *string `json:"payload"`
	PayloadBase64       *string `json:"payload_base64"`
}

// ParseExternalFrame decodes one JSON frame. payload_base64 takes
// precedence over payload. A missing hardware timestamp becomes nowNs.
func ParseExternalFrame(line []byte, nowNs uint64) (Frame, error) {
	var ef externalFrame
	if err := sonnet.Unmarshal(line, &ef); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrFrameNotJSON, err)
	}

	var payload []byte
	switch {
	case ef.PayloadBase64 != nil:
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(*ef.PayloadBase64))
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrFrameInvalidBase64, err)
		}
		payload = decoded
	case ef.Payload != nil:
		payload = []byte(*ef.Payload)
	}
	if len(payload) == 0 {
		return Frame{}, ErrFrameMissingPayload
	}

	ts := nowNs
	if ef.HardwareTimestampNs != nil {
		ts = *ef.HardwareTimestampNs
	}
	return Frame{HardwareTimestampNs: ts, Payload: payload}, nil
}

// ParseDeviceLine interprets one line read from a direct device. JSON
// frames are parsed as external frames; otherwise the line is treated as
// base64 when it decodes to something, else as a raw DMA payload.
func ParseDeviceLine(line []byte, nowNs uint64) (Frame, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Frame{}, ErrFrameMissingPayload
	}
	if line[0] == '{' {
		return ParseExternalFrame(line, nowNs)
	}
	if decoded, err := base64.StdEncoding.DecodeString(string(line)); err == nil && len(decoded) > 0 {
		return Frame{HardwareTimestampNs: nowNs, Payload: decoded}, nil
	}
	payload := make([]byte, len(line))
	copy(payload, line)
	return Frame{HardwareTimestampNs: nowNs, Payload: payload}, nil
}

// readLine returns the next newline-terminated line without the newline.
// A final unterminated line is returned with a nil error.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if len(line) > 0 && (err == nil || len(bytes.TrimSpace(line)) > 0) {
		return bytes.TrimRight(line, "\r\n"), nil
	}
	return nil, err
}
