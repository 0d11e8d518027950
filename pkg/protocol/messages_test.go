package protocol

import (
	"encoding/json"
	"testing"
)

func TestEncodeRegistrationRequest(t *testing.T) {
	body, err := EncodeRegistrationRequest("tok", "esp32switchea28006")
	if err != nil {
		t.Fatalf("EncodeRegistrationRequest() error = %v", err)
	}
	want := `{"uid":"tok","topic":"esp32switchea28006","type":3,"wifiConfig":1}`
	if string(body) != want {
		t.Errorf("body = %s, want %s", body, want)
	}
}

func TestDecodeRegistrationResponse(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		accepted bool
		code     int
	}{
		{"fresh registration", `{"code":0,"data":{"code":0}}`, true, 0},
		{"already registered", `{"data":{"code":40006,"message":"topic exists"}}`, true, 40006},
		{"rejected", `{"data":{"code":40000}}`, false, 40000},
		{"missing data", `{"code":0}`, false, 0},
		{"missing code", `{"data":{}}`, false, 0},
		{"data not an object", `{"data":5}`, false, 0},
		{"code not a number", `{"data":{"code":"0"}}`, false, 0},
		{"not json", `<html>502</html>`, false, 0},
		{"truncated", `{"data":{"co`, false, 0},
		{"empty", ``, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeRegistrationResponse([]byte(tt.body))
			if got.Accepted != tt.accepted || got.ReasonCode != tt.code {
				t.Errorf("DecodeRegistrationResponse(%s) = %+v, want accepted=%v code=%d", tt.body, got, tt.accepted, tt.code)
			}
		})
	}
}

func TestBindRequest_Valid(t *testing.T) {
	var req BindRequest
	if err := json.Unmarshal([]byte(`{"cmdType":1,"ssid":"home","password":"secret","token":"abc"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !req.Valid() {
		t.Error("expected configure request to be valid")
	}

	req.Token = ""
	if req.Valid() {
		t.Error("request without token should be invalid")
	}

	if (BindRequest{CmdType: BindCmdRestart}).Valid() {
		t.Error("restart request is not a configure request")
	}
}

func TestNewBindResponse(t *testing.T) {
	data, err := json.Marshal(NewBindResponse("esp32switchea28006", "esp32_test"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"cmdType":2,"productId":"esp32switchea28006","deviceName":"esp32_test","protoVersion":"3.1"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
