package sseutil

import "testing"

func TestPayload(t *testing.T) {
	cases := []struct {
		line string
		want string
		done bool
	}{
		{`data: {"id":"x"}`, `{"id":"x"}`, false},
		{`data:{"id":"x"}`, `{"id":"x"}`, false},
		{`data: [DONE]`, "", true},
		{`[DONE]`, "", true},
		{``, "", false},
		{`: keep-alive comment`, "", false},
		{`event: ping`, "", false},
		{`data: `, "", false},
	}
	for _, tc := range cases {
		payload, done := Payload([]byte(tc.line))
		if string(payload) != tc.want {
			t.Errorf("Payload(%q) = %q, want %q", tc.line, payload, tc.want)
		}
		if done != tc.done {
			t.Errorf("Payload(%q) done = %v, want %v", tc.line, done, tc.done)
		}
	}
}
