package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bistro-cms/menuimport/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrContract marks a response that does not match the expected item shape.
var ErrContract = errors.New("response does not match the menu item contract")

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "confidence"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "description": {"type": ["string", "null"]},
          "price": {"type": ["number", "string", "null"]},
          "tags": {"type": ["array", "null"], "items": {"type": "string"}},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    }
  }
}`

var contract = jsonschema.MustCompileString("menu_items.json", schemaJSON)

// cleanResponse trims markdown code fences some models wrap around JSON.
func cleanResponse(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// ParseResponse validates a raw model answer and maps it to candidates.
// A bare top-level array is treated as the items list.
func ParseResponse(raw string) ([]models.CandidateItem, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(cleanResponse(raw))))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrContract, err)
	}
	if arr, ok := doc.([]any); ok {
		doc = map[string]any{"items": arr}
	}

	if err := contract.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContract, err)
	}

	raws := doc.(map[string]any)["items"].([]any)
	items := make([]models.CandidateItem, 0, len(raws))
	for i, r := range raws {
		item := toCandidate(r.(map[string]any))
		if item.Name == "" {
			return nil, fmt.Errorf("%w: items[%d].name is blank", ErrContract, i)
		}
		items = append(items, item)
	}
	return items, nil
}

func toCandidate(m map[string]any) models.CandidateItem {
	item := models.CandidateItem{
		Name: strings.TrimSpace(m["name"].(string)),
	}
	if d, ok := m["description"].(string); ok {
		item.Description = strings.TrimSpace(d)
	}
	if n, ok := m["confidence"].(json.Number); ok {
		item.Confidence, _ = n.Float64()
	}

	var priceText string
	switch p := m["price"].(type) {
	case json.Number:
		priceText = p.String()
	case string:
		priceText = p
	}
	price, err := models.ParsePrice(priceText)
	if err != nil {
		item.PriceIssue = err.Error()
	} else {
		item.Price = price
	}

	if tags, ok := m["tags"].([]any); ok {
		item.Tags = normalizeTags(tags)
	}
	return item
}

func normalizeTags(raw []any) []string {
	seen := make(map[string]bool, len(raw))
	var tags []string
	for _, t := range raw {
		tag := strings.ToLower(strings.TrimSpace(t.(string)))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
