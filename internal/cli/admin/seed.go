package admin

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/talentboard/supportbot/internal/domain"
)

// seedFile is the JSON layout accepted by --seed. It mirrors the four
// source collections of the job board.
type seedFile struct {
	FAQs []struct {
		ID       string `json:"id"`
		Question string `json:"question"`
		Answer   string `json:"answer"`
		Category string `json:"category"`
	} `json:"faqs"`
	ContentPages []struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"content_pages"`
	BlogPosts []struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"blog_posts"`
	CustomQAs []struct {
		ID       string   `json:"id"`
		Question string   `json:"question"`
		Answer   string   `json:"answer"`
		Tags     []string `json:"tags"`
		IsActive *bool    `json:"is_active"`
	} `json:"custom_qas"`
}

func loadSeedFile(path string) ([]domain.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return parseSeed(data)
}

func parseSeed(data []byte) ([]domain.Source, error) {
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	var sources []domain.Source
	for _, f := range seed.FAQs {
		if f.ID == "" {
			return nil, fmt.Errorf("seed faq without id")
		}
		sources = append(sources, &domain.FAQ{ID: f.ID, Question: f.Question, Answer: f.Answer, Category: f.Category})
	}
	for _, p := range seed.ContentPages {
		if p.ID == "" {
			return nil, fmt.Errorf("seed content page without id")
		}
		sources = append(sources, &domain.ContentPage{ID: p.ID, Type: p.Type, Title: p.Title, Description: p.Description})
	}
	for _, b := range seed.BlogPosts {
		if b.ID == "" {
			return nil, fmt.Errorf("seed blog post without id")
		}
		sources = append(sources, &domain.BlogPost{ID: b.ID, Title: b.Title, Description: b.Description})
	}
	for _, q := range seed.CustomQAs {
		if q.ID == "" {
			return nil, fmt.Errorf("seed custom qa without id")
		}
		// Custom QAs are active unless the seed says otherwise.
		active := q.IsActive == nil || *q.IsActive
		sources = append(sources, &domain.CustomQA{ID: q.ID, Question: q.Question, Answer: q.Answer, Tags: q.Tags, IsActive: active})
	}
	return sources, nil
}
