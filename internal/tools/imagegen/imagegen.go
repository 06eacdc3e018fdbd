// Package imagegen implements the generate_image tool over the OpenAI
// image generation API. Generated images come back as URLs and are
// surfaced to the model as markdown links so they can be woven into the
// final answer.
package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/quailsgpt/quailsgpt/internal/agent"
)

// imageCreator is the slice of the OpenAI client the tool needs.
// Satisfied by *openai.Client.
type imageCreator interface {
	CreateImage(ctx context.Context, request openai.ImageRequest) (openai.ImageResponse, error)
}

// Config holds image generation tool configuration.
type Config struct {
	// APIKey authenticates against the image API.
	APIKey string

	// BaseURL overrides the default API base URL.
	BaseURL string

	// DefaultSize is used when the model does not pick one.
	// Default: 256x256.
	DefaultSize string
}

// Params are the model-supplied tool parameters.
type Params struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	Count  int    `json:"count,omitempty"`
}

// Tool implements agent.Tool for image generation.
type Tool struct {
	client      imageCreator
	defaultSize string
}

// New creates an image generation tool.
func New(config Config) (*Tool, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("imagegen: API key is required")
	}
	if config.DefaultSize == "" {
		config.DefaultSize = openai.CreateImageSize256x256
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &Tool{
		client:      openai.NewClientWithConfig(clientConfig),
		defaultSize: config.DefaultSize,
	}, nil
}

func (t *Tool) Name() string {
	return "generate_image"
}

func (t *Tool) Description() string {
	return "Generate one or more images from a text prompt. Returns markdown image links to include in the answer."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"prompt": {
				"type": "string",
				"description": "Description of the image to generate"
			},
			"size": {
				"type": "string",
				"enum": ["256x256", "512x512", "1024x1024"],
				"description": "Image dimensions (default: 256x256)"
			},
			"count": {
				"type": "integer",
				"minimum": 1,
				"maximum": 4,
				"description": "Number of images to generate (default: 1)"
			}
		},
		"required": ["prompt"]
	}`)
}

// Execute generates images and returns markdown links to them.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p Params
	if err := json.Unmarshal(params, &p); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Invalid parameters: %v", err),
			IsError: true,
		}, nil
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return &agent.ToolResult{
			Content: "Prompt parameter is required",
			IsError: true,
		}, nil
	}
	if p.Size == "" {
		p.Size = t.defaultSize
	}
	if p.Count <= 0 {
		p.Count = 1
	} else if p.Count > 4 {
		p.Count = 4
	}

	resp, err := t.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         p.Prompt,
		Size:           p.Size,
		N:              p.Count,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Image generation failed: %v", err),
			IsError: true,
		}, nil
	}
	if len(resp.Data) == 0 {
		return &agent.ToolResult{
			Content: "Image generation returned no images",
			IsError: true,
		}, nil
	}

	var sb strings.Builder
	for i, img := range resp.Data {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "![%s](%s)", p.Prompt, img.URL)
	}
	return &agent.ToolResult{Content: sb.String()}, nil
}
