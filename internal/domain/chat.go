package domain

import "strings"

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    Role
	Content string
}

// Answer is the result of a retrieval-augmented chat request.
type Answer struct {
	Answer  string
	Sources []ScoredChunk
}

// ContentPart is one text-bearing piece of a generated response.
type ContentPart struct {
	Type string
	Text string
}

// GeneratedContent is the raw content returned by a generative model: either
// a single string or a list of parts.
type GeneratedContent struct {
	Text  string
	Parts []ContentPart
}

// String concatenates every textual part of the content.
func (c GeneratedContent) String() string {
	if len(c.Parts) == 0 {
		return c.Text
	}
	var b strings.Builder
	b.WriteString(c.Text)
	for _, p := range c.Parts {
		if p.Type != "" && p.Type != "text" {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
