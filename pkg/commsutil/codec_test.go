package commsutil

import (
	"testing"
)

func TestEncodePayload_Unserializable(t *testing.T) {
	if _, err := EncodePayload(make(chan int)); err == nil {
		t.Fatal("commsutil:codec_test - expected error but got nil")
	}
}

func TestDecodePayload_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{invalid}`},
		{"empty data", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := map[string]string{}
			if err := DecodePayload([]byte(tt.data), &target); err == nil {
				t.Fatal("commsutil:codec_test - expected error but got nil")
			}
		})
	}
}

func TestConvert_MapToStruct(t *testing.T) {
	type registerInput struct {
		Name         string   `json:"name"`
		Capabilities []string `json:"capabilities"`
		Port         int      `json:"port"`
	}

	params := map[string]interface{}{
		"name":         "research_agent",
		"capabilities": []interface{}{"research_destination", "weather_lookup"},
		"port":         float64(9001),
	}

	var in registerInput
	if err := Convert(params, &in); err != nil {
		t.Fatalf("commsutil:codec_test - Convert failed: %v", err)
	}
	if in.Name != "research_agent" {
		t.Errorf("commsutil:codec_test - Name = %q, want %q", in.Name, "research_agent")
	}
	if len(in.Capabilities) != 2 {
		t.Errorf("commsutil:codec_test - Capabilities length = %d, want 2", len(in.Capabilities))
	}
	if in.Port != 9001 {
		t.Errorf("commsutil:codec_test - Port = %d, want 9001", in.Port)
	}
}

func TestConvert_TypeMismatch(t *testing.T) {
	var out struct {
		Port int `json:"port"`
	}
	err := Convert(map[string]interface{}{"port": "not-a-number"}, &out)
	if err == nil {
		t.Fatal("commsutil:codec_test - expected decode error")
	}
}

func TestToMap(t *testing.T) {
	m, err := ToMap(struct {
		Vote       string  `json:"vote"`
		Confidence float64 `json:"confidence"`
	}{Vote: "approve", Confidence: 0.8})
	if err != nil {
		t.Fatalf("commsutil:codec_test - ToMap failed: %v", err)
	}
	if m["vote"] != "approve" {
		t.Errorf("commsutil:codec_test - vote = %v, want approve", m["vote"])
	}
	if m["confidence"] != 0.8 {
		t.Errorf("commsutil:codec_test - confidence = %v, want 0.8", m["confidence"])
	}
}
