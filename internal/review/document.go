package review

import (
	"fmt"
	"io"
	"time"

	"github.com/bistro-cms/menuimport/internal/models"
	"gopkg.in/yaml.v3"
)

// Document is the review list written to disk for headless editing.
// Prices are plain text so an operator can type them the way the menu shows them.
type Document struct {
	Files       []string  `yaml:"files"`
	Provider    string    `yaml:"provider,omitempty"`
	Model       string    `yaml:"model,omitempty"`
	ExtractedAt time.Time `yaml:"extracted_at"`
	Items       []DocItem `yaml:"items"`
}

type DocItem struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description,omitempty"`
	Price         string   `yaml:"price,omitempty"`
	Tags          []string `yaml:"tags,omitempty"`
	Confidence    float64  `yaml:"confidence"`
	LowConfidence bool     `yaml:"low_confidence,omitempty"`
	PriceIssue    string   `yaml:"price_issue,omitempty"`
}

// NewDocument captures l for editing
func NewDocument(l List) Document {
	doc := Document{Items: make([]DocItem, len(l))}
	for i, it := range l {
		d := DocItem{
			Name:          it.Name,
			Description:   it.Description,
			Tags:          it.Tags,
			Confidence:    it.Confidence,
			LowConfidence: it.LowConfidence(),
			PriceIssue:    it.PriceIssue,
		}
		if it.Price != nil {
			d.Price = it.Price.StringFixed(2)
		}
		doc.Items[i] = d
	}
	return doc
}

// List reads the edited items back. Prices go through the same rules as an
// edit in the wizard, so unreadable ones become price issues.
func (d Document) List() List {
	l := make(List, 0, len(d.Items))
	for _, it := range d.Items {
		price := it.Price
		name := it.Name
		desc := it.Description
		tags := it.Tags
		item := applyEdit(models.CandidateItem{Confidence: it.Confidence}, Edit{
			Name:        &name,
			Description: &desc,
			Price:       &price,
			Tags:        &tags,
		})
		if price == "" && it.PriceIssue != "" {
			item.PriceIssue = it.PriceIssue
		}
		l = append(l, item)
	}
	return l
}

func WriteDocument(w io.Writer, d Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&d); err != nil {
		return fmt.Errorf("encode review document: %w", err)
	}
	return enc.Close()
}

func ReadDocument(r io.Reader) (Document, error) {
	var d Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return d, fmt.Errorf("decode review document: %w", err)
	}
	return d, nil
}
