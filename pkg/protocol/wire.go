// Package protocol implements the bemfa wire formats: the CRLF-terminated
// query-string lines spoken on the broker TCP socket and the JSON envelopes
// exchanged with the HTTP API.
package protocol

import (
	"bytes"
	"strings"
	"unicode"
)

// Broker command codes carried in the "cmd" field.
const (
	CmdHeartbeat = "0"
	CmdPublish   = "2"
	CmdSubscribe = "3"
)

// Ping is the keepalive line a device may send; the broker answers with a
// cmd=0 reply.
const Ping = "ping"

// Field keys used on the TCP channel.
const (
	KeyCmd   = "cmd"
	KeyUID   = "uid"
	KeyTopic = "topic"
	KeyMsg   = "msg"
	KeyRes   = "res"
)

// Switch payloads.
const (
	SwitchOn  = "on"
	SwitchOff = "off"
)

const lineEnd = "\r\n"

// EncodeSubscribe builds the subscribe line for a topic.
func EncodeSubscribe(token, topic string) string {
	return KeyCmd + "=" + CmdSubscribe + "&" + KeyUID + "=" + token + "&" + KeyTopic + "=" + topic + lineEnd
}

// EncodePublish builds the publish line carrying msg for a topic.
func EncodePublish(token, topic, msg string) string {
	return KeyCmd + "=" + CmdPublish + "&" + KeyUID + "=" + token + "&" + KeyTopic + "=" + topic + "&" + KeyMsg + "=" + msg + lineEnd
}

// SwitchMessage returns the wire payload for a switch position.
func SwitchMessage(on bool) string {
	if on {
		return SwitchOn
	}
	return SwitchOff
}

// ParseSwitch reports whether msg turns the switch on. Anything other than
// "on" is off.
func ParseSwitch(msg string) bool {
	return msg == SwitchOn
}

// DecodeField returns the value of the first key=value pair named key.
// The value runs to the next '&' or the end of raw and has trailing
// whitespace and control characters removed. A missing key or empty input
// yields ok == false.
func DecodeField(raw []byte, key string) (value string, ok bool) {
	if len(raw) == 0 || key == "" {
		return "", false
	}
	needle := []byte(key + "=")
	for start := 0; start < len(raw); {
		idx := bytes.Index(raw[start:], needle)
		if idx < 0 {
			return "", false
		}
		pos := start + idx
		if pos == 0 || raw[pos-1] == '&' {
			rest := raw[pos+len(needle):]
			if end := bytes.IndexByte(rest, '&'); end >= 0 {
				rest = rest[:end]
			}
			return trimTrailing(string(rest)), true
		}
		start = pos + 1
	}
	return "", false
}

func trimTrailing(s string) string {
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
}

// Field is one key=value pair of a WireMessage.
type Field struct {
	Key   string
	Value string
}

// WireMessage is an ordered list of fields decoded from one line.
type WireMessage []Field

// ParseMessage splits raw into its fields, preserving order. Segments
// without '=' are skipped. Values are normalised like DecodeField.
func ParseMessage(raw []byte) WireMessage {
	line := trimTrailing(string(raw))
	if line == "" {
		return nil
	}
	var msg WireMessage
	for _, part := range strings.Split(line, "&") {
		key, value, found := strings.Cut(part, "=")
		if !found || key == "" {
			continue
		}
		msg = append(msg, Field{Key: key, Value: trimTrailing(value)})
	}
	return msg
}

// Get returns the first value stored under key.
func (m WireMessage) Get(key string) (string, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Encode renders the message as a CRLF-terminated line.
func (m WireMessage) Encode() string {
	var b strings.Builder
	for i, f := range m {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	b.WriteString(lineEnd)
	return b.String()
}
