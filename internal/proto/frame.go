package proto

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Frame commands understood by the codec.
const (
	CommandConnect     = "CONNECT"
	CommandStomp       = "STOMP"
	CommandConnected   = "CONNECTED"
	CommandSend        = "SEND"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandMessage     = "MESSAGE"
	CommandReceipt     = "RECEIPT"
	CommandError       = "ERROR"
	CommandDisconnect  = "DISCONNECT"
	CommandAck         = "ACK"
	CommandNack        = "NACK"
	CommandBegin       = "BEGIN"
	CommandCommit      = "COMMIT"
	CommandAbort       = "ABORT"
)

// Header names used by the chat protocol.
const (
	HeaderAcceptVersion = "accept-version"
	HeaderVersion       = "version"
	HeaderHost          = "host"
	HeaderHeartBeat     = "heart-beat"
	HeaderServer        = "server"
	HeaderDestination   = "destination"
	HeaderID            = "id"
	HeaderSubscription  = "subscription"
	HeaderMessageID     = "message-id"
	HeaderContentType   = "content-type"
	HeaderContentLength = "content-length"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderMessage       = "message"
)

var knownCommands = map[string]struct{}{
	CommandConnect: {}, CommandStomp: {}, CommandConnected: {}, CommandSend: {},
	CommandSubscribe: {}, CommandUnsubscribe: {}, CommandMessage: {}, CommandReceipt: {},
	CommandError: {}, CommandDisconnect: {}, CommandAck: {}, CommandNack: {},
	CommandBegin: {}, CommandCommit: {}, CommandAbort: {},
}

// ErrMalformedFrame is returned when bytes cannot be decoded into a frame
// or a frame lacks what its command requires.
var ErrMalformedFrame = errors.New("malformed frame")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}

// Header is an ordered list of header entries. Lookups return the first occurrence.
type Header struct {
	keys   []string
	values []string
}

// NewHeader builds a header from alternating key, value pairs.
func NewHeader(kv ...string) Header {
	var h Header
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

// Add appends an entry, keeping any existing entry with the same key.
func (h *Header) Add(key, value string) {
	h.keys = append(h.keys, key)
	h.values = append(h.values, value)
}

// Set replaces the first entry with key or appends a new one.
func (h *Header) Set(key, value string) {
	for i, k := range h.keys {
		if k == key {
			h.values[i] = value
			return
		}
	}
	h.Add(key, value)
}

// Get returns the first value for key.
func (h Header) Get(key string) string {
	v, _ := h.Lookup(key)
	return v
}

// Lookup returns the first value for key and whether it was present.
func (h Header) Lookup(key string) (string, bool) {
	for i, k := range h.keys {
		if k == key {
			return h.values[i], true
		}
	}
	return "", false
}

// Len returns the number of entries.
func (h Header) Len() int {
	return len(h.keys)
}

// Frame is one STOMP protocol unit.
type Frame struct {
	Command string
	Header  Header
	Body    []byte
}

// NewFrame builds a frame from a command and alternating header key, value pairs.
func NewFrame(command string, kv ...string) *Frame {
	return &Frame{Command: command, Header: NewHeader(kv...)}
}

// String renders the frame for logs without the body.
func (f *Frame) String() string {
	var b strings.Builder
	b.WriteString(f.Command)
	for i, k := range f.Header.keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(f.Header.values[i])
	}
	return b.String()
}

// escapes reports whether header values of command are escaped on the wire.
func escapes(command string) bool {
	return command != CommandConnect && command != CommandConnected
}

// Encode serializes the frame. A content-length header is added for non-empty bodies.
func Encode(f *Frame) []byte {
	var buf bytes.Buffer
	esc := escapes(f.Command)

	buf.WriteString(f.Command)
	buf.WriteByte('\n')
	for i, k := range f.Header.keys {
		if k == HeaderContentLength {
			continue
		}
		writeHeaderText(&buf, k, esc)
		buf.WriteByte(':')
		writeHeaderText(&buf, f.Header.values[i], esc)
		buf.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		buf.WriteString(HeaderContentLength)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

func writeHeaderText(buf *bytes.Buffer, s string, esc bool) {
	if !esc {
		buf.WriteString(s)
		return
	}
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case ':':
			buf.WriteString(`\c`)
		default:
			buf.WriteByte(c)
		}
	}
}

func unescapeHeaderText(s string, esc bool) (string, error) {
	if !esc || !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", malformed("dangling escape in %q", s)
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'c':
			b.WriteByte(':')
		default:
			return "", malformed("undefined escape \\%c", s[i])
		}
	}
	return b.String(), nil
}

// Decode parses every frame in data. A transport message may carry zero frames
// (heart-beat EOLs only), one frame, or several frames back to back.
// Frames decoded before the first malformed one are returned along with the error.
func Decode(data []byte) ([]*Frame, error) {
	var frames []*Frame
	rest := data
	for {
		rest = skipEOLs(rest)
		if len(rest) == 0 {
			return frames, nil
		}
		f, n, err := decodeOne(rest)
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
		rest = rest[n:]
	}
}

func skipEOLs(b []byte) []byte {
	for len(b) > 0 && (b[0] == '\n' || b[0] == '\r') {
		b = b[1:]
	}
	return b
}

// decodeOne parses a single frame at the start of data and returns the bytes consumed.
func decodeOne(data []byte) (*Frame, int, error) {
	pos := 0
	readLine := func() (string, bool) {
		idx := bytes.IndexByte(data[pos:], '\n')
		if idx < 0 {
			return "", false
		}
		line := data[pos : pos+idx]
		pos += idx + 1
		return strings.TrimSuffix(string(line), "\r"), true
	}

	command, ok := readLine()
	if !ok {
		return nil, 0, malformed("missing command line")
	}
	if _, known := knownCommands[command]; !known {
		return nil, 0, malformed("unknown command %q", command)
	}

	f := &Frame{Command: command}
	esc := escapes(command)
	for {
		line, ok := readLine()
		if !ok {
			return nil, 0, malformed("unterminated header block")
		}
		if line == "" {
			break
		}
		sep := strings.IndexByte(line, ':')
		if sep <= 0 {
			return nil, 0, malformed("bad header line %q", line)
		}
		key, err := unescapeHeaderText(line[:sep], esc)
		if err != nil {
			return nil, 0, err
		}
		value, err := unescapeHeaderText(line[sep+1:], esc)
		if err != nil {
			return nil, 0, err
		}
		f.Header.Add(key, value)
	}

	if raw, ok := f.Header.Lookup(HeaderContentLength); ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			return nil, 0, malformed("bad content-length %q", raw)
		}
		if pos+n >= len(data) || data[pos+n] != 0 {
			return nil, 0, malformed("body shorter than content-length %d", n)
		}
		f.Body = copyBody(data[pos : pos+n])
		return f, pos + n + 1, nil
	}

	end := bytes.IndexByte(data[pos:], 0)
	if end < 0 {
		return nil, 0, malformed("missing NUL terminator")
	}
	f.Body = copyBody(data[pos : pos+end])
	return f, pos + end + 1, nil
}

func copyBody(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
