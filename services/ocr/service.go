package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/docrelay/docrelay/config"
	"github.com/docrelay/docrelay/interfaces"
	"github.com/docrelay/docrelay/internal/enum"
	ers "github.com/docrelay/docrelay/internal/errors"
	"github.com/docrelay/docrelay/internal/logger"
	"github.com/docrelay/docrelay/internal/models"
	"github.com/docrelay/docrelay/internal/tracing"
)

const (
	// below this many extracted characters the result is tagged low
	// confidence
	highConfidenceMinChars = 50

	// near-zero sampling keeps extraction deterministic
	extractionTemperature = 0.1

	// the retention opt-out value the recognition service expects
	dataCollectionDeny = "deny"

	pageMarker = "--- Page"
)

const imagePrompt = `Extract ALL text from this image with high accuracy. It may contain handwritten notes or scanned documents.

Instructions:
1. Extract ALL visible text, including handwritten notes, typed text and diagram labels.
2. Maintain the logical reading order (top to bottom, left to right).
3. Preserve structure with line breaks and spacing where meaningful.
4. If text is unclear, make your best interpretation but note uncertainty.
5. Include any numbers, symbols, or special characters you can identify.
6. If there are multiple columns or sections, separate them clearly.

Return only the extracted text content. Do not include explanations or commentary.`

const pdfPrompt = `Extract ALL text from this PDF document with high accuracy. It may contain handwritten notes or scanned pages.

Instructions:
1. Extract ALL visible text from all pages, including handwritten notes, typed text and diagram labels.
2. Maintain the logical reading order (top to bottom, left to right).
3. If there are multiple pages, clearly separate them with "--- Page X ---" headers.
4. Preserve structure with line breaks and spacing where meaningful.
5. If text is unclear, make your best interpretation but note uncertainty.
6. Include any numbers, symbols, or special characters you can identify.
7. If there are multiple columns or sections, separate them clearly.

Return only the extracted text content. Do not include explanations or commentary.`

type ocrService struct {
	cfg        *config.OCRConfig
	apiKey     string
	httpClient *http.Client
	log        logger.Logger
}

// NewOCRService builds a recognition client. An empty apiKey falls back to
// the process-wide key from config.
func NewOCRService(cfg *config.OCRConfig, apiKey string, log logger.Logger) interfaces.OCRService {
	if apiKey == "" {
		apiKey = cfg.APIKey
	}
	return &ocrService{
		cfg:    cfg,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		log: log,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	Temperature    float64       `json:"temperature"`
	DataCollection string        `json:"data_collection"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ProcessAttachment extracts text from one attachment. Unsupported
// extensions short-circuit to a failed result without touching the network;
// a failed service call is surfaced as success=false, never as an error.
func (s *ocrService) ProcessAttachment(ctx context.Context, filename string, data []byte) *models.OCRResult {
	span, ctx := tracing.StartTracerSpan(ctx, "ocrService.ProcessAttachment")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("filename", filename)
	span.SetTag("size", len(data))

	ext := strings.ToLower(filepath.Ext(filename))

	result := &models.OCRResult{
		Filename:     filename,
		FileType:     ext,
		FileSize:     len(data),
		ModelUsed:    s.cfg.Model,
		ProcessingID: uuid.New().String(),
		CompletedAt:  time.Now(),
	}

	var prompt, payloadURL string
	var maxTokens int

	switch ext {
	case ".pdf":
		prompt = pdfPrompt
		maxTokens = s.cfg.MaxTokensPDF
		result.ContentType = "application/pdf"
		payloadURL = fmt.Sprintf("data:application/pdf;base64,%s", base64.StdEncoding.EncodeToString(data))
	case ".png":
		prompt = imagePrompt
		maxTokens = s.cfg.MaxTokensImage
		result.ContentType = "image/png"
		payloadURL = fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(data))
	case ".jpg", ".jpeg":
		prompt = imagePrompt
		maxTokens = s.cfg.MaxTokensImage
		result.ContentType = "image/jpeg"
		payloadURL = fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(data))
	default:
		err := errors.Wrapf(ers.ErrUnsupportedFileType, "%s", ext)
		tracing.TraceErr(span, err)
		result.Confidence = enum.ConfidenceFailed
		result.Error = err.Error()
		return result
	}

	s.log.Infof("Processing attachment %s (%d bytes)", filename, len(data))

	text, err := s.callVisionAPI(ctx, prompt, payloadURL, maxTokens)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("OCR failed for %s: %v", filename, err)
		result.Confidence = enum.ConfidenceFailed
		result.Error = err.Error()
		return result
	}

	result.Text = text
	result.Success = true
	result.PageCount = estimatePageCount(ext, text)
	if len(text) > highConfidenceMinChars {
		result.Confidence = enum.ConfidenceHigh
	} else {
		result.Confidence = enum.ConfidenceLow
	}

	span.LogKV("confidence", result.Confidence.String(), "text_length", len(text))
	return result
}

// callVisionAPI performs a single recognition call. No internal retry: the
// caller owns retry policy.
func (s *ocrService) callVisionAPI(ctx context.Context, prompt, payloadURL string, maxTokens int) (string, error) {
	request := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{URL: payloadURL}},
				},
			},
		},
		MaxTokens:      maxTokens,
		Temperature:    extractionTemperature,
		DataCollection: dataCollectionDeny,
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.BaseURL+"/chat/completions", bytes.NewBuffer(payload))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("HTTP-Referer", s.cfg.Referer)
	req.Header.Set("X-Title", s.cfg.Title)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "unable to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("recognition service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal response")
	}

	if len(response.Choices) == 0 {
		return "", errors.New("empty response from recognition service")
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func estimatePageCount(ext, text string) int {
	if ext != ".pdf" {
		return 1
	}
	markers := strings.Count(text, pageMarker)
	if markers > 1 {
		return markers
	}
	return 1
}
