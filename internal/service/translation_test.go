package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleBatch = "1\n00:00:00,000 --> 00:00:01,000\nWear your harness\n\n"

func chatServer(t *testing.T, status int, body string, captured *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if captured != nil {
			json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestTranslateBatch(t *testing.T) {
	var req chatRequest
	srv := chatServer(t, http.StatusOK,
		`{"choices":[{"message":{"content":"1\n00:00:00,000 --> 00:00:01,000\nPonte el arnés"}}]}`, &req)
	defer srv.Close()

	svc := NewTranslationService(&TranslationConfig{Model: "gpt-4o-mini", APIKey: "key", BaseURL: srv.URL + "/v1"})
	got, err := svc.TranslateBatch(context.Background(), sampleBatch, "Spanish")
	if err != nil {
		t.Fatalf("TranslateBatch() error = %v", err)
	}
	if !strings.Contains(got, "Ponte el arnés") {
		t.Errorf("got %q", got)
	}

	if req.Model != "gpt-4o-mini" || len(req.Messages) != 2 {
		t.Fatalf("request = %+v", req)
	}
	user := req.Messages[1].Content
	if !strings.Contains(user, "Spanish") || !strings.Contains(user, "Wear your harness") {
		t.Errorf("user prompt = %q", user)
	}
}

func TestTranslateBatchResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr string
	}{
		{
			name:   "code fence",
			status: http.StatusOK,
			body:   "{\"choices\":[{\"message\":{\"content\":\"```srt\\n1\\n00:00:00,000 --> 00:00:01,000\\nHola\\n```\"}}]}",
			want:   "1\n00:00:00,000 --> 00:00:01,000\nHola",
		},
		{
			name:   "empty content keeps source",
			status: http.StatusOK,
			body:   `{"choices":[{"message":{"content":"   "}}]}`,
			want:   sampleBatch,
		},
		{
			name:    "api error",
			status:  http.StatusTooManyRequests,
			body:    `{"error":{"message":"rate limited","type":"requests"}}`,
			wantErr: "HTTP 429: rate limited",
		},
		{
			name:    "no choices",
			status:  http.StatusOK,
			body:    `{"choices":[]}`,
			wantErr: "no choices",
		},
		{
			name:    "unparsable",
			status:  http.StatusOK,
			body:    `not json`,
			wantErr: "translation",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := chatServer(t, tc.status, tc.body, nil)
			defer srv.Close()

			svc := NewTranslationService(&TranslationConfig{APIKey: "key", BaseURL: srv.URL + "/v1"})
			got, err := svc.TranslateBatch(context.Background(), sampleBatch, "Spanish")
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Errorf("error = %v, want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		"plain":                 "plain",
		"```\nbody\n```":        "body",
		"```srt\n1\nx\n```  \n": "1\nx",
		"```":                   "",
	}
	for in, want := range tests {
		if got := stripCodeFence(in); got != want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
