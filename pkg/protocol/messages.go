package protocol

import "encoding/json"

// Registration reason codes returned in data.code.
const (
	CodeOK                = 0
	CodeAlreadyRegistered = 40006
)

// Registration constants sent with every addTopic request.
const (
	registrationType       = 3
	registrationWiFiConfig = 1
)

// RegistrationRequest is the body POSTed to the deviceAddTopic endpoint.
type RegistrationRequest struct {
	UID        string `json:"uid"`
	Topic      string `json:"topic"`
	Type       int    `json:"type"`
	WiFiConfig int    `json:"wifiConfig"`
}

// RegistrationResponse is the envelope returned by deviceAddTopic.
type RegistrationResponse struct {
	Data *struct {
		Code *int `json:"code"`
	} `json:"data"`
}

// RegistrationResult is the decoded outcome of a registration attempt.
type RegistrationResult struct {
	Accepted   bool
	ReasonCode int
}

// EncodeRegistrationRequest builds the JSON body registering topic for token.
func EncodeRegistrationRequest(token, topic string) ([]byte, error) {
	return json.Marshal(RegistrationRequest{
		UID:        token,
		Topic:      topic,
		Type:       registrationType,
		WiFiConfig: registrationWiFiConfig,
	})
}

// DecodeRegistrationResponse interprets a deviceAddTopic reply. Unparseable
// bodies and bodies without data.code are rejected. A topic that is already
// registered counts as accepted.
func DecodeRegistrationResponse(body []byte) RegistrationResult {
	var resp RegistrationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return RegistrationResult{}
	}
	if resp.Data == nil || resp.Data.Code == nil {
		return RegistrationResult{}
	}
	code := *resp.Data.Code
	return RegistrationResult{
		Accepted:   code == CodeOK || code == CodeAlreadyRegistered,
		ReasonCode: code,
	}
}

// Bind command types.
const (
	BindCmdConfigure = 1
	BindCmdReply     = 2
	BindCmdRestart   = 3
)

// BindRequest is sent by the bemfa app during provisioning.
type BindRequest struct {
	CmdType  int    `json:"cmdType"`
	SSID     string `json:"ssid,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Valid reports whether the request carries everything a configure step needs.
func (r BindRequest) Valid() bool {
	return r.CmdType == BindCmdConfigure && r.SSID != "" && r.Password != "" && r.Token != ""
}

// BindResponse answers a configure request.
type BindResponse struct {
	CmdType      int    `json:"cmdType"`
	ProductID    string `json:"productId"`
	DeviceName   string `json:"deviceName"`
	ProtoVersion string `json:"protoVersion"`
}

// NewBindResponse returns the reply advertising topic as the product id.
func NewBindResponse(topic, deviceName string) BindResponse {
	return BindResponse{
		CmdType:      BindCmdReply,
		ProductID:    topic,
		DeviceName:   deviceName,
		ProtoVersion: "3.1",
	}
}
