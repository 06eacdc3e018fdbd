package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

// fakeCreator records requests and returns a scripted response.
type fakeCreator struct {
	requests []openai.ImageRequest
	response openai.ImageResponse
	err      error
}

func (f *fakeCreator) CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ImageResponse{}, f.err
	}
	return f.response, nil
}

func newTestTool(creator imageCreator) *Tool {
	return &Tool{client: creator, defaultSize: openai.CreateImageSize256x256}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New: expected error without API key")
	}
	if _, err := New(Config{APIKey: "sk-test"}); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestExecuteReturnsMarkdownLinks(t *testing.T) {
	creator := &fakeCreator{response: openai.ImageResponse{
		Data: []openai.ImageResponseDataInner{
			{URL: "https://images.test/a.png"},
			{URL: "https://images.test/b.png"},
		},
	}}
	tool := newTestTool(creator)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"prompt":"a quail","count":2,"size":"512x512"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("result = %+v", res)
	}
	want := "![a quail](https://images.test/a.png)\n![a quail](https://images.test/b.png)"
	if res.Content != want {
		t.Errorf("content = %q, want %q", res.Content, want)
	}

	if len(creator.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(creator.requests))
	}
	req := creator.requests[0]
	if req.Prompt != "a quail" || req.Size != "512x512" || req.N != 2 {
		t.Errorf("request = %+v", req)
	}
	if req.ResponseFormat != openai.CreateImageResponseFormatURL {
		t.Errorf("response format = %q", req.ResponseFormat)
	}
}

func TestExecuteDefaults(t *testing.T) {
	creator := &fakeCreator{response: openai.ImageResponse{
		Data: []openai.ImageResponseDataInner{{URL: "https://images.test/a.png"}},
	}}
	tool := newTestTool(creator)

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"prompt":"a quail"}`)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	req := creator.requests[0]
	if req.Size != openai.CreateImageSize256x256 {
		t.Errorf("size = %q, want default 256x256", req.Size)
	}
	if req.N != 1 {
		t.Errorf("n = %d, want 1", req.N)
	}
}

func TestExecuteCapsCount(t *testing.T) {
	creator := &fakeCreator{response: openai.ImageResponse{
		Data: []openai.ImageResponseDataInner{{URL: "https://images.test/a.png"}},
	}}
	tool := newTestTool(creator)

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"prompt":"a quail","count":9}`)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n := creator.requests[0].N; n != 4 {
		t.Errorf("n = %d, want 4", n)
	}
}

func TestExecuteRejectsEmptyPrompt(t *testing.T) {
	creator := &fakeCreator{}
	tool := newTestTool(creator)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"prompt":"  "}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "required") {
		t.Errorf("result = %+v", res)
	}
	if len(creator.requests) != 0 {
		t.Errorf("requests = %d, want 0", len(creator.requests))
	}
}

func TestExecuteAPIErrorBecomesErrorResult(t *testing.T) {
	tool := newTestTool(&fakeCreator{err: fmt.Errorf("quota exceeded")})

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"prompt":"a quail"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "quota exceeded") {
		t.Errorf("result = %+v", res)
	}
}
