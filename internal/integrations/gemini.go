package integrations

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiInvoker answers LLM requests with Google's Gemini API.
type GeminiInvoker struct {
	client *genai.Client
	model  string
	files  *FileStore
	logger *zap.Logger
}

// NewGeminiInvoker creates a Gemini client. Files uploaded to files are sent
// inline; other http(s) URLs are passed by reference.
func NewGeminiInvoker(ctx context.Context, apiKey, model string, files *FileStore, logger *zap.Logger) (*GeminiInvoker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiInvoker{client: client, model: model, files: files, logger: logger}, nil
}

func (g *GeminiInvoker) Invoke(ctx context.Context, req LLMRequest) (map[string]any, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, u := range req.FileURLs {
		if part := g.filePart(u); part != nil {
			parts = append(parts, part)
		}
	}

	config := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if req.ResponseSchema != nil {
		config.ResponseJsonSchema = req.ResponseSchema
	}

	result, err := g.client.Models.GenerateContent(ctx,
		g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrSchemaMismatch)
	}
	return decodeResponse(text, req.ResponseSchema)
}

func (g *GeminiInvoker) filePart(fileURL string) *genai.Part {
	if g.files != nil {
		if f, err := g.files.Resolve(fileURL); err == nil {
			return genai.NewPartFromBytes(f.Data, f.ContentType)
		}
	}
	if strings.HasPrefix(fileURL, "http://") || strings.HasPrefix(fileURL, "https://") {
		mimeType := mime.TypeByExtension(path.Ext(fileURL))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		return genai.NewPartFromURI(fileURL, mimeType)
	}
	g.logger.Warn("skipping unresolvable file url", zap.String("url", fileURL))
	return nil
}

// Name returns the invoker name.
func (g *GeminiInvoker) Name() string {
	return "genai:" + g.model
}
