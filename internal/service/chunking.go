package service

import (
	"maps"
	"strings"
	"unicode"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 800
	// DefaultChunkOverlap is the number of characters shared by consecutive chunks.
	DefaultChunkOverlap = 120
)

// ChunkConfig controls chunking for knowledge embeddings.
type ChunkConfig struct {
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int // 0 means unlimited
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:  DefaultChunkSize,
		MinChars:  DefaultChunkSize / 2,
		Overlap:   DefaultChunkOverlap,
		MaxChunks: 0,
	}
}

// ChunkDraft is a chunk of text that has not been embedded yet.
type ChunkDraft struct {
	Text     string
	Metadata map[string]any
}

// SplitText splits text into overlapping drafts, each carrying its own copy
// of metadata. Empty text yields no drafts.
func SplitText(text string, metadata map[string]any, cfg ChunkConfig) []ChunkDraft {
	chunks := chunkText(text, cfg)
	if len(chunks) == 0 {
		return nil
	}
	drafts := make([]ChunkDraft, 0, len(chunks))
	for _, c := range chunks {
		drafts = append(drafts, ChunkDraft{Text: c, Metadata: maps.Clone(metadata)})
	}
	return drafts
}

func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	if cfg.Overlap >= cfg.MaxChars {
		cfg.Overlap = cfg.MaxChars / 2
	}
	if cfg.MinChars <= cfg.Overlap {
		// a cut point must always land past the overlap or chunks stop advancing
		cfg.MinChars = cfg.Overlap + 1
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	chunks := make([]string, 0, len(runes)/(cfg.MaxChars-cfg.Overlap)+1)
	start := 0
	for start < len(runes) {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			cut := end
			minCut := start + cfg.MinChars
			if minCut > end {
				minCut = start
			}
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if end <= start {
			break
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			nextStart = end - cfg.Overlap
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}
