package objectkey

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for attachment key generation strategies
type Generator interface {
	// GenerateKey creates a blob path for an attachment of the given resource prefix
	GenerateKey(prefix string, attachmentID uuid.UUID, fileName string) string
}

// FlatGenerator keeps every attachment of a resource in one directory.
// Structure: {prefix}/{attachmentID}_{filename}
type FlatGenerator struct{}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{}
}

func (g *FlatGenerator) GenerateKey(prefix string, attachmentID uuid.UUID, fileName string) string {
	name := attachmentID.String()
	if fileName != "" {
		name = fmt.Sprintf("%s_%s", name, sanitizeFilename(fileName))
	}
	return join(prefix, name)
}

// GitLikeGenerator shards attachments Git-style under the resource prefix.
// Structure: {prefix}/ab/cd1234ef5678_filename
type GitLikeGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewGitLikeGenerator() *GitLikeGenerator {
	return &GitLikeGenerator{
		ShardLength: 2,
	}
}

func (g *GitLikeGenerator) GenerateKey(prefix string, attachmentID uuid.UUID, fileName string) string {
	idStr := strings.ReplaceAll(attachmentID.String(), "-", "")

	shardLength := g.ShardLength
	if shardLength <= 0 || shardLength > len(idStr) {
		shardLength = 2
	}
	shardDir := idStr[:shardLength]
	remaining := idStr[shardLength:]

	name := remaining
	if fileName != "" {
		name = fmt.Sprintf("%s_%s", remaining, sanitizeFilename(fileName))
	}
	return join(prefix, shardDir, name)
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(prefix string, attachmentID uuid.UUID, fileName string) string
}

func NewCustomFuncGenerator(fn func(prefix string, attachmentID uuid.UUID, fileName string) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *CustomFuncGenerator) GenerateKey(prefix string, attachmentID uuid.UUID, fileName string) string {
	return g.GenerateFunc(prefix, attachmentID, fileName)
}

// join cleans the prefix and appends the already sanitized name parts.
func join(prefix string, parts ...string) string {
	var segments []string
	for _, s := range strings.Split(strings.Trim(prefix, "/"), "/") {
		if s != "" {
			segments = append(segments, sanitizePathComponent(s))
		}
	}
	segments = append(segments, parts...)
	return path.Join(segments...)
}

func sanitizeFilename(filename string) string {
	// base name only
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"#", "_",
		"%", "_",
	)
	name := replacer.Replace(filename)
	if name == "." || name == ".." || name == "" {
		return "file"
	}
	return name
}

func sanitizePathComponent(component string) string {
	if component == "." || component == ".." {
		return "_"
	}
	replacer := strings.NewReplacer(
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return strings.ToLower(replacer.Replace(component))
}

// NewRecommendedGenerator returns the recommended generator for new installations
func NewRecommendedGenerator() Generator {
	return NewGitLikeGenerator()
}
