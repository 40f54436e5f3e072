package model

import "testing"

func TestAnswerValueEmpty(t *testing.T) {
	cases := []struct {
		name  string
		v     AnswerValue
		empty bool
	}{
		{"blank text", AnswerValue{Kind: AnswerText}, true},
		{"text present", AnswerValue{Kind: AnswerText, Text: "hi"}, false},
		{"no selection", AnswerValue{Kind: AnswerChoices}, true},
		{"selection present", AnswerValue{Kind: AnswerChoice, Selected: []string{"a"}}, false},
		{"media no refs", AnswerValue{Kind: AnswerMedia}, true},
		{"media local only", AnswerValue{Kind: AnswerMedia, LocalRef: "/captures/x.raw"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.v.Empty(); got != tc.empty {
				t.Fatalf("Empty() = %v, want %v", got, tc.empty)
			}
		})
	}
}

func TestAnswerValueDurable(t *testing.T) {
	local := AnswerValue{Kind: AnswerMedia, LocalRef: "/captures/x.raw"}
	if local.Durable() {
		t.Fatal("local-only media reference must not be durable")
	}

	resolved := local
	resolved.DurableURL = "https://blob/x.webm"
	if !resolved.Durable() {
		t.Fatal("resolved media reference must be durable")
	}

	text := AnswerValue{Kind: AnswerText, Text: "anything"}
	if !text.Durable() {
		t.Fatal("text answers are always durable")
	}
}
