package hl7v2

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"time"
)

// MLLP framing bytes.
const (
	startBlock     = 0x0B
	endBlock       = 0x1C
	carriageReturn = 0x0D

	maxFrameSize = 1 << 20
)

// Frame wraps data as <VT>data<FS><CR>.
func Frame(data []byte) []byte {
	out := make([]byte, 0, len(data)+3)
	out = append(out, startBlock)
	out = append(out, data...)
	return append(out, endBlock, carriageReturn)
}

// Unframe extracts the first complete frame from data. ok is false until
// the end block has been seen.
func Unframe(data []byte) (msg, rest []byte, ok bool) {
	start := bytes.IndexByte(data, startBlock)
	if start < 0 {
		return nil, data, false
	}
	end := bytes.Index(data[start+1:], []byte{endBlock, carriageReturn})
	if end < 0 {
		return nil, data, false
	}
	end += start + 1
	return data[start+1 : end], data[end+2:], true
}

// Sender delivers messages to one MLLP endpoint and waits for the
// application acknowledgement. A connection is opened per message.
type Sender struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

func NewSender(addr string, timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{addr: addr, timeout: timeout}
}

func (s *Sender) Addr() string { return s.addr }

// Send writes msg and reads the ACK. Any MSA-1 other than AA or CA is an
// error.
func (s *Sender) Send(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("mllp dial %s: %w", s.addr, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if _, err := conn.Write(Frame(msg)); err != nil {
		return fmt.Errorf("mllp write: %w", err)
	}

	raw, err := readFrame(bufio.NewReader(conn))
	if err != nil {
		return fmt.Errorf("mllp read ack: %w", err)
	}
	ack, err := Parse(raw)
	if err != nil {
		return fmt.Errorf("mllp parse ack: %w", err)
	}
	msa := ack.Segment("MSA")
	if msa == nil {
		return fmt.Errorf("mllp: ack has no MSA segment")
	}
	switch code := msa.GetField(1); code {
	case "AA", "CA":
		return nil
	default:
		return fmt.Errorf("mllp: message rejected with %s: %s", code, msa.GetField(3))
	}
}

// readFrame skips bytes before the start block and returns the payload up
// to the first <FS><CR>. A lone FS is kept as payload.
func readFrame(r *bufio.Reader) ([]byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == startBlock {
			break
		}
	}

	var buf []byte
	for {
		chunk, err := r.ReadSlice(endBlock)
		if len(buf)+len(chunk) > maxFrameSize+1 {
			return nil, fmt.Errorf("frame exceeds %d bytes", maxFrameSize)
		}
		buf = append(buf, chunk...)
		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err != nil:
			return nil, err
		}

		next, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if next == carriageReturn {
			return buf[:len(buf)-1], nil
		}
		if err := r.UnreadByte(); err != nil {
			return nil, err
		}
	}
}

// ACK builds an acknowledgement for msg with the given MSA-1 code.
func ACK(msg *Message, code, text string) []byte {
	now := time.Now().UTC().Format(hl7Time)
	return []byte(fmt.Sprintf("MSH|^~\\&|||||%s||ACK|ACK%s|P|%s\rMSA|%s|%s|%s",
		now, msg.ControlID, msg.Version, code, msg.ControlID, escape(text)))
}
