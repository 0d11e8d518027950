package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"bemfarelay/internal/client/session"
	"bemfarelay/internal/storage"
	"bemfarelay/pkg/protocol"
)

// BindStore is the storage the bind command writes into.
type BindStore interface {
	storage.DeviceStateStore
	WriteBindInfo(ssid, password, token, topic string) error
}

// parseBindInput accepts either the JSON configure request sent by the
// bemfa app or a bare token.
func parseBindInput(arg string) (protocol.BindRequest, error) {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "{") {
		return protocol.BindRequest{CmdType: protocol.BindCmdConfigure, Token: arg}, nil
	}

	var req protocol.BindRequest
	if err := json.Unmarshal([]byte(arg), &req); err != nil {
		return protocol.BindRequest{}, fmt.Errorf("decode bind request: %w", err)
	}
	if !req.Valid() {
		return protocol.BindRequest{}, errors.New("bind request needs cmdType 1 with ssid, password and token")
	}
	return req, nil
}

// hardwareAddr parses mac, or picks the first non-loopback interface with
// a hardware address when mac is empty.
func hardwareAddr(mac string, ifaces func() ([]net.Interface, error)) (net.HardwareAddr, error) {
	if mac != "" {
		return net.ParseMAC(mac)
	}
	list, err := ifaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	for _, iface := range list {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) < 2 {
			continue
		}
		return iface.HardwareAddr, nil
	}
	return nil, errors.New("no interface with a hardware address, pass --mac")
}

// bind derives the topic from mac, stores the credentials and returns the
// reply the app expects.
func bind(store BindStore, req protocol.BindRequest, mac net.HardwareAddr, deviceName string) (protocol.BindResponse, error) {
	topic, err := protocol.TopicFromMAC(mac)
	if err != nil {
		return protocol.BindResponse{}, err
	}
	creds := session.Credentials{Topic: topic, Token: req.Token}
	if err := creds.Validate(); err != nil {
		return protocol.BindResponse{}, err
	}
	if err := store.WriteBindInfo(req.SSID, req.Password, req.Token, topic); err != nil {
		return protocol.BindResponse{}, fmt.Errorf("save credentials: %w", err)
	}
	return protocol.NewBindResponse(topic, deviceName), nil
}
