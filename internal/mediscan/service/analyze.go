package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/mediscan/pkg/gemini"
	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

var (
	ErrImageRequired      = errors.New("image is required")
	ErrInvalidImage       = errors.New("invalid image format")
	ErrAnalysisDisabled   = errors.New("image analysis is not configured")
	ErrAnalysisUnreadable = errors.New("failed to parse analysis results")
)

const analyzePrompt = `I am building a medicine scanning application. Analyze the uploaded image of a medicine (packaging, label or leaflet) and populate the JSON structure below. Use the text in the image and well known references such as the FDA or WHO. If the medicine name is identified, use it to fill the usage information as completely as possible. Leave a field empty only if nothing can be found.

{
  "product_identification": {"medicine_name": "", "brands": "", "dosage_form": "", "strength": "", "code": ""},
  "ingredients_and_allergens": {"active_ingredients": "", "inactive_ingredients": "", "allergens": "", "warnings": ""},
  "usage_information": {"indications": "", "directions_for_use": "", "contraindications": "", "side_effects": "", "uses": ""},
  "pricing_information": {"price": "", "price_per_tablet": ""},
  "safety_and_storage": {"storage_conditions": "", "manufacture_date": "", "expiry_date": "", "warnings": ""},
  "additional_details": {"categories": "", "manufacturer": "", "batch_number": ""},
  "search": {"google_search_url": "https://www.google.com/search?q=<medicine_name>"}
}

URL-encode the medicine name in google_search_url. Return only valid JSON without any markdown formatting and without extra fields.`

// AnalyzeService extracts medicine details from a photo. Model is nil when
// no API key is configured.
type AnalyzeService struct {
	Model Generator
}

func (s *AnalyzeService) Enabled() bool { return s.Model != nil }

// Analyze takes a base64 data URL and returns the model's JSON verbatim.
func (s *AnalyzeService) Analyze(ctx context.Context, image string) (json.RawMessage, error) {
	if strings.TrimSpace(image) == "" {
		return nil, ErrImageRequired
	}
	mimeType, data, err := gemini.DecodeDataURL(image)
	if err != nil {
		return nil, ErrInvalidImage
	}
	if !s.Enabled() {
		return nil, ErrAnalysisDisabled
	}

	text, err := s.Model.Generate(ctx, gemini.Text(analyzePrompt), gemini.Blob(mimeType, data))
	if err != nil {
		return nil, fmt.Errorf("analyze image: %w", err)
	}

	out, err := parseModelJSON(text)
	if err != nil {
		slogx.FromContext(ctx).Warn("unparseable analysis", "error", err, "bytes", len(text))
		return nil, ErrAnalysisUnreadable
	}
	return out, nil
}

// parseModelJSON strips a surrounding markdown code fence, if any, and
// checks that what is left is a JSON value.
func parseModelJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		// Drop the info string, e.g. "json".
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		} else {
			rest = ""
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "```"))
	}

	if !json.Valid([]byte(text)) {
		return nil, errors.New("model output is not JSON")
	}
	return json.RawMessage(text), nil
}
