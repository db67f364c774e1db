package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSyntheticPortraitDeterministic(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if !client.Synthetic() {
		t.Fatal("client without key must be synthetic")
	}

	req := PortraitRequest{
		Selfie:    []byte("selfie"),
		Board:     []byte("board"),
		Prompt:    "prompt",
		RequestID: "req-1",
	}
	first, err := client.GeneratePortrait(context.Background(), req)
	if err != nil {
		t.Fatalf("GeneratePortrait: %v", err)
	}
	second, err := client.GeneratePortrait(context.Background(), req)
	if err != nil {
		t.Fatalf("GeneratePortrait: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("synthetic portraits should be deterministic per request")
	}

	req.Prompt = "different prompt"
	third, err := client.GeneratePortrait(context.Background(), req)
	if err != nil {
		t.Fatalf("GeneratePortrait: %v", err)
	}
	if bytes.Equal(first, third) {
		t.Fatal("different prompts should produce different synthetic bytes")
	}
}

func TestRemotePortraitDecodesInlineData(t *testing.T) {
	want := []byte{0x89, 0x50, 0x4e, 0x47}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key query param")
		}
		var payload geminiGenerateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(payload.Contents) != 1 || len(payload.Contents[0].Parts) != 3 {
			t.Errorf("expected selfie+board+text parts, got %+v", payload.Contents)
		}
		_ = json.NewEncoder(w).Encode(geminiGenerateContentResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{{
					InlineData: &geminiInlineData{
						MimeType: "image/png",
						Data:     base64.StdEncoding.EncodeToString(want),
					},
				}}},
			}},
		})
	}))
	defer server.Close()

	client, err := NewClient(Options{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	got, err := client.GeneratePortrait(context.Background(), PortraitRequest{
		Selfie: []byte("s"), Board: []byte("b"), Prompt: "p", RequestID: "r",
	})
	if err != nil {
		t.Fatalf("GeneratePortrait: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("bytes mismatch: got %v", got)
	}
}

func TestRemotePortraitNoImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(geminiGenerateContentResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{{Text: "sorry"}}},
			}},
		})
	}))
	defer server.Close()

	client, _ := NewClient(Options{APIKey: "test-key", BaseURL: server.URL})
	_, err := client.GeneratePortrait(context.Background(), PortraitRequest{Prompt: "p"})
	if !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestRemotePortraitSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	}))
	defer server.Close()

	client, _ := NewClient(Options{APIKey: "test-key", BaseURL: server.URL})
	_, err := client.GeneratePortrait(context.Background(), PortraitRequest{Prompt: "p"})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected api error message, got %v", err)
	}
}
