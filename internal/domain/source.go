package domain

import (
	"fmt"
	"strings"
)

// SourceType tags the collection a knowledge chunk was derived from.
type SourceType string

const (
	SourceTypeFAQ         SourceType = "faq"
	SourceTypeContentPage SourceType = "content-page"
	SourceTypeBlog        SourceType = "blog"
	SourceTypeCustomQA    SourceType = "custom-qa"
)

// AllSourceTypes lists every source type in rebuild order.
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceTypeFAQ,
		SourceTypeContentPage,
		SourceTypeBlog,
		SourceTypeCustomQA,
	}
}

// IsValid reports whether t is a known source type.
func (t SourceType) IsValid() bool {
	switch t {
	case SourceTypeFAQ, SourceTypeContentPage, SourceTypeBlog, SourceTypeCustomQA:
		return true
	}
	return false
}

// ParseSourceType parses a user supplied source type. Underscored spellings
// ("content_page", "custom_qa") are accepted as aliases.
func ParseSourceType(s string) (SourceType, error) {
	value := strings.ToLower(strings.TrimSpace(s))
	value = strings.ReplaceAll(value, "_", "-")
	t := SourceType(value)
	if !t.IsValid() {
		return "", NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidSourceType.Message, fmt.Errorf("%q", s))
	}
	return t, nil
}

// Source is a document owned by the job-board CRUD layer that feeds the
// knowledge store.
type Source interface {
	SourceType() SourceType
	SourceID() string
}

// FAQ is a frequently asked question entry.
type FAQ struct {
	ID       string
	Question string
	Answer   string
	Category string
}

func (f *FAQ) SourceType() SourceType { return SourceTypeFAQ }
func (f *FAQ) SourceID() string       { return f.ID }

// ContentPage is a static site page (about, terms, pricing...).
type ContentPage struct {
	ID          string
	Type        string
	Title       string
	Description string
}

func (p *ContentPage) SourceType() SourceType { return SourceTypeContentPage }
func (p *ContentPage) SourceID() string       { return p.ID }

// BlogPost is a published blog article.
type BlogPost struct {
	ID          string
	Title       string
	Description string
}

func (b *BlogPost) SourceType() SourceType { return SourceTypeBlog }
func (b *BlogPost) SourceID() string       { return b.ID }

// CustomQA is a manually curated question/answer pair. Inactive entries are
// treated as if they did not exist.
type CustomQA struct {
	ID       string
	Question string
	Answer   string
	Tags     []string
	IsActive bool
}

func (q *CustomQA) SourceType() SourceType { return SourceTypeCustomQA }
func (q *CustomQA) SourceID() string       { return q.ID }
