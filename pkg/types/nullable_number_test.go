package types

import (
	"encoding/json"
	"testing"
)

func TestNullableNumberUnmarshal(t *testing.T) {
	type payload struct {
		Gallons NullableNumber `json:"gallons"`
	}

	cases := []struct {
		name  string
		body  string
		valid bool
		null  bool
		text  string
	}{
		{name: "bare number", body: `{"gallons": 12.345}`, valid: true, text: "12.345"},
		{name: "quoted number", body: `{"gallons": "3.5"}`, valid: true, text: "3.5"},
		{name: "currency text", body: `{"gallons": "$1,234.50"}`, valid: true, text: "$1,234.50"},
		{name: "free text", body: `{"gallons": "lots"}`, valid: true, text: "lots"},
		{name: "explicit null", body: `{"gallons": null}`, valid: true, null: true},
		{name: "absent", body: `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got payload
			if err := json.Unmarshal([]byte(tc.body), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Gallons.Valid != tc.valid {
				t.Fatalf("valid = %v, want %v", got.Gallons.Valid, tc.valid)
			}
			if tc.null && got.Gallons.Value != nil {
				t.Fatalf("expected explicit null, got %q", *got.Gallons.Value)
			}
			if got.Gallons.Text() != tc.text {
				t.Fatalf("text = %q, want %q", got.Gallons.Text(), tc.text)
			}
		})
	}
}

func TestNullableNumberRejectsNonScalars(t *testing.T) {
	var got struct {
		Gallons NullableNumber `json:"gallons"`
	}
	if err := json.Unmarshal([]byte(`{"gallons": true}`), &got); err == nil {
		t.Fatal("expected error for boolean value")
	}
}
