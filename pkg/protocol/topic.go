package protocol

import (
	"fmt"
	"net"
)

// Credential length limits enforced by the device firmware buffers.
const (
	MaxTopicLen = 31
	MaxTokenLen = 63
)

// TopicFromMAC derives the device topic from the last two bytes of its
// station MAC. Bytes are printed in unpadded lower-case hex.
func TopicFromMAC(mac net.HardwareAddr) (string, error) {
	if len(mac) < 2 {
		return "", fmt.Errorf("hardware address too short: %d bytes", len(mac))
	}
	return fmt.Sprintf("esp32switch%x%x006", mac[len(mac)-2], mac[len(mac)-1]), nil
}
