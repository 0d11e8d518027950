package protocol

import (
	"net"
	"testing"
)

func TestEncodeSubscribe(t *testing.T) {
	got := EncodeSubscribe("6cf90baf69f846f0", "esp32switchea28006")
	want := "cmd=3&uid=6cf90baf69f846f0&topic=esp32switchea28006\r\n"
	if got != want {
		t.Errorf("EncodeSubscribe() = %q, want %q", got, want)
	}
}

func TestEncodePublish(t *testing.T) {
	got := EncodePublish("tok", "light002", "off")
	want := "cmd=2&uid=tok&topic=light002&msg=off\r\n"
	if got != want {
		t.Errorf("EncodePublish() = %q, want %q", got, want)
	}
}

func TestDecodeField(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		key    string
		want   string
		wantOK bool
	}{
		{"first field", "cmd=3&uid=abc&topic=t&msg=on\r\n", "cmd", "3", true},
		{"last field trims crlf", "cmd=3&uid=abc&topic=t&msg=on\r\n", "msg", "on", true},
		{"trailing spaces and tabs", "cmd=2&msg=off \t\r\n", "msg", "off", true},
		{"middle field", "cmd=2&res=1&topic=t", "res", "1", true},
		{"missing key", "cmd=2&res=1\r\n", "msg", "", false},
		{"empty value", "cmd=2&msg=&res=1", "msg", "", true},
		{"empty value at end", "cmd=2&msg=", "msg", "", true},
		{"repeated key first wins", "msg=on&msg=off", "msg", "on", true},
		{"key suffix is not a match", "xcmd=9&cmd=3", "cmd", "3", true},
		{"key only inside value", "topic=cmd=5", "cmd", "", false},
		{"truncated key", "cm", "cmd", "", false},
		{"key without equals", "cmd&uid=1", "cmd", "", false},
		{"empty input", "", "cmd", "", false},
		{"empty key", "cmd=3", "", "", false},
		{"control bytes stripped", "msg=on\x00\x01", "msg", "on", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeField([]byte(tt.raw), tt.key)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("DecodeField(%q, %q) = (%q, %v), want (%q, %v)", tt.raw, tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDecodeField_NilBuffer(t *testing.T) {
	if _, ok := DecodeField(nil, "cmd"); ok {
		t.Error("expected no value for nil buffer")
	}
}

func TestDecodeField_AllPrefixesOfALine(t *testing.T) {
	line := []byte(EncodePublish("token", "topic", "on"))
	for i := 0; i <= len(line); i++ {
		// Must never panic on a truncated buffer.
		DecodeField(line[:i], "msg")
		DecodeField(line[:i], "cmd")
	}
}

func TestSubscribeRoundTrip(t *testing.T) {
	pairs := []struct{ token, topic string }{
		{"6cf90baf69f846f08b5a8383d6256a49", "esp32switchea28006"},
		{"t", "x"},
		{"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcde", "esp32switch0a1006"},
	}
	for _, p := range pairs {
		line := []byte(EncodeSubscribe(p.token, p.topic))
		if cmd, _ := DecodeField(line, KeyCmd); cmd != CmdSubscribe {
			t.Errorf("cmd = %q, want %q", cmd, CmdSubscribe)
		}
		if uid, _ := DecodeField(line, KeyUID); uid != p.token {
			t.Errorf("uid = %q, want %q", uid, p.token)
		}
		if topic, _ := DecodeField(line, KeyTopic); topic != p.topic {
			t.Errorf("topic = %q, want %q", topic, p.topic)
		}
	}
}

func TestParseMessage(t *testing.T) {
	msg := ParseMessage([]byte("cmd=2&uid=u&topic=t&msg=on&msg=off\r\n"))
	if len(msg) != 5 {
		t.Fatalf("expected 5 fields, got %d", len(msg))
	}
	if msg[0].Key != KeyCmd || msg[0].Value != CmdPublish {
		t.Errorf("first field = %+v", msg[0])
	}
	if v, _ := msg.Get(KeyMsg); v != "on" {
		t.Errorf("Get(msg) = %q, want on", v)
	}
	if _, ok := msg.Get(KeyRes); ok {
		t.Error("res should be absent")
	}
	if got := msg.Encode(); got != "cmd=2&uid=u&topic=t&msg=on&msg=off\r\n" {
		t.Errorf("Encode() = %q", got)
	}
}

func TestParseMessage_SkipsMalformedSegments(t *testing.T) {
	msg := ParseMessage([]byte("garbage&&=x&cmd=3"))
	if len(msg) != 1 {
		t.Fatalf("expected 1 field, got %d: %+v", len(msg), msg)
	}
	if ParseMessage([]byte("\r\n")) != nil {
		t.Error("blank line should decode to nil")
	}
}

func TestSwitchHelpers(t *testing.T) {
	if SwitchMessage(true) != "on" || SwitchMessage(false) != "off" {
		t.Error("SwitchMessage mismatch")
	}
	for msg, want := range map[string]bool{"on": true, "off": false, "ON": false, "": false, "1": false} {
		if got := ParseSwitch(msg); got != want {
			t.Errorf("ParseSwitch(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestTopicFromMAC(t *testing.T) {
	tests := []struct {
		mac  net.HardwareAddr
		want string
	}{
		{net.HardwareAddr{0x24, 0x6f, 0x28, 0x01, 0xea, 0x28}, "esp32switchea28006"},
		{net.HardwareAddr{0x24, 0x6f, 0x28, 0x01, 0x0a, 0x01}, "esp32switcha1006"},
	}
	for _, tt := range tests {
		got, err := TopicFromMAC(tt.mac)
		if err != nil {
			t.Fatalf("TopicFromMAC(%v) error = %v", tt.mac, err)
		}
		if got != tt.want {
			t.Errorf("TopicFromMAC(%v) = %q, want %q", tt.mac, got, tt.want)
		}
		if len(got) > MaxTopicLen {
			t.Errorf("topic %q exceeds %d chars", got, MaxTopicLen)
		}
	}

	if _, err := TopicFromMAC(net.HardwareAddr{0x01}); err == nil {
		t.Error("expected error for short address")
	}
}
