package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/praxis-ed/curio/internal/domain"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from text-embedding-3-small
	DefaultEmbeddingDimensions = 1536
	// DefaultVisionModel handles page extraction, image description and classification
	DefaultVisionModel = openai.GPT4o

	describeImageMaxTokens = 500
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has unexpected dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions, expected 1536")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
	// ErrEmptyImage is returned when image bytes are empty
	ErrEmptyImage = errors.New("image cannot be empty")
)

// API is the slice of the OpenAI surface the client needs. *openai.Client
// satisfies it; tests substitute a fake.
type API interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client wraps the OpenAI API for embedding, vision extraction, image
// description and book classification.
type Client struct {
	api            API
	embeddingModel openai.EmbeddingModel
	visionModel    string
	dimensions     int
}

type Config struct {
	APIKey              string
	EmbeddingModel      openai.EmbeddingModel
	VisionModel         string
	EmbeddingDimensions int
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	c := &Client{
		api:            openai.NewClient(cfg.APIKey),
		embeddingModel: cfg.EmbeddingModel,
		visionModel:    cfg.VisionModel,
		dimensions:     cfg.EmbeddingDimensions,
	}
	if c.embeddingModel == "" {
		c.embeddingModel = DefaultEmbeddingModel
	}
	if c.visionModel == "" {
		c.visionModel = DefaultVisionModel
	}
	if c.dimensions <= 0 {
		c.dimensions = DefaultEmbeddingDimensions
	}
	return c
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// NewClientWithAPI injects a custom API implementation. Used by tests.
func NewClientWithAPI(api API) *Client {
	return &Client{
		api:            api,
		embeddingModel: DefaultEmbeddingModel,
		visionModel:    DefaultVisionModel,
		dimensions:     DefaultEmbeddingDimensions,
	}
}

// EmbedTexts generates one embedding per input text in a single batch call.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.embeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if len(item.Embedding) != c.dimensions {
			return nil, ErrWrongDimensions
		}
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("embedding response has out-of-range index %d", item.Index)
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// DescribeImage asks the vision model for a student-facing description of a
// cropped textbook region.
func (c *Client) DescribeImage(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.visionModel,
		MaxTokens: describeImageMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Describe this image from an educational textbook in detail. Focus on the educational content, text, diagrams, and any visual cues relevant for a student. If there is text, transcribe it.",
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL("image/png", image)},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe image: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no description returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ExtractedAtom is one content block the vision model pulled off a page.
type ExtractedAtom struct {
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	MetaData map[string]any `json:"meta_data,omitempty"`
}

// PageExtraction is the structured result of parsing one page image.
type PageExtraction struct {
	UnitNumber  *int            `json:"unit_number"`
	LessonTitle string          `json:"lesson_title"`
	Atoms       []ExtractedAtom `json:"atoms"`
}

const extractPagePrompt = `You are an expert educational content parser.
Analyze this textbook page image and extract the content into JSON with this exact shape:
{"unit_number": <int or null>, "lesson_title": <string or null>, "atoms": [{"type": "...", "content": "...", "meta_data": {...}}]}

Guidelines:
1. Identify the unit number and lesson title from headers.
2. Extract text blocks with type "text". If it is a dialogue, note the speaker in meta_data.
3. For images, write a detailed visual description in "content" and set type to "image_desc".
4. For vocabulary lists use type "vocab", for grammar explanations "grammar", for formulas "equation".
5. Ignore page numbers, running headers, and copyright text.`

// ExtractPage sends one page image to the vision model and parses the
// structured extraction it returns.
func (c *Client) ExtractPage(ctx context.Context, image []byte) (*PageExtraction, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.visionModel,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a helpful assistant that extracts structured data from document images.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: extractPagePrompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL("image/jpeg", image)},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract page: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no extraction returned")
	}

	var extraction PageExtraction
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &extraction); err != nil {
		return nil, fmt.Errorf("failed to decode page extraction: %w", err)
	}
	return &extraction, nil
}

// BookClassification is the detected subject domain and target grade of a book.
type BookClassification struct {
	Category   domain.Category `json:"category"`
	GradeLevel int             `json:"grade_level,omitempty"`
}

const classifyPrompt = `Classify the following textbook into one of these three categories:
1. "language" (ESL, grammar, vocabulary, reading comprehension)
2. "stem" (Math, Physics, Chemistry, Biology, Engineering)
3. "history" (History, Social Studies, Geography, Civics)

Also estimate the target grade level (1-12) if apparent, else 0.

Book title: %q
Text sample (first lines): %q

Answer with JSON: {"category": "...", "grade_level": <int>}`

// ClassifyBook detects a book's category and grade level from its title and
// a sample of its text. Unrecognized categories fall back to language.
func (c *Client) ClassifyBook(ctx context.Context, title, sample string) (BookClassification, error) {
	if len(sample) > 500 {
		sample = sample[:500]
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.visionModel,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(classifyPrompt, title, sample),
			},
		},
	})
	if err != nil {
		return BookClassification{}, fmt.Errorf("failed to classify book: %w", err)
	}
	if len(resp.Choices) == 0 {
		return BookClassification{}, errors.New("no classification returned")
	}

	var raw struct {
		Category   string `json:"category"`
		GradeLevel int    `json:"grade_level"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &raw); err != nil {
		return BookClassification{}, fmt.Errorf("failed to decode classification: %w", err)
	}

	category, err := domain.ParseCategory(strings.ToLower(strings.TrimSpace(raw.Category)))
	if err != nil {
		category = domain.CategoryLanguage
	}
	return BookClassification{Category: category, GradeLevel: raw.GradeLevel}, nil
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
