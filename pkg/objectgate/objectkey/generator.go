package objectkey

import (
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for entity id generation strategies.
// The entity id is the part of an object name below its storage root and the
// part of a logical path after /objects/.
type Generator interface {
	GenerateEntityID(id uuid.UUID, metadata *KeyMetadata) string
}

// KeyMetadata contains information that influences entity id generation
type KeyMetadata struct {
	ContentType string
}

// FlatGenerator produces "<uuid><ext>" directly under the root
type FlatGenerator struct{}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{}
}

func (g *FlatGenerator) GenerateEntityID(id uuid.UUID, metadata *KeyMetadata) string {
	return id.String() + extensionFor(metadata)
}

// ShardedGenerator provides Git-style sharded ids so no single directory
// under a root grows without bound.
// Example: 98/7fcdeb51a243d19f12345678901234.mp4
type ShardedGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{
		ShardLength: 2,
	}
}

func (g *ShardedGenerator) GenerateEntityID(id uuid.UUID, metadata *KeyMetadata) string {
	idStr := strings.ReplaceAll(id.String(), "-", "")

	shardLength := g.ShardLength
	if shardLength <= 0 || shardLength >= len(idStr) {
		shardLength = 2
	}

	return fmt.Sprintf("%s/%s%s", idStr[:shardLength], idStr[shardLength:], extensionFor(metadata))
}

// CustomFuncGenerator allows users to provide their own id generation function
type CustomFuncGenerator struct {
	GenerateFunc func(id uuid.UUID, metadata *KeyMetadata) string
}

func NewCustomFuncGenerator(fn func(id uuid.UUID, metadata *KeyMetadata) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *CustomFuncGenerator) GenerateEntityID(id uuid.UUID, metadata *KeyMetadata) string {
	return g.GenerateFunc(id, metadata)
}

// NewForLayout returns the generator registered under a layout name
func NewForLayout(layout string) (Generator, error) {
	switch strings.ToLower(layout) {
	case "", "flat":
		return NewFlatGenerator(), nil
	case "sharded":
		return NewShardedGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown object key layout %q (use 'flat' or 'sharded')", layout)
	}
}

// Preferred extensions for the media types uploads usually carry. The
// platform mime table lists several extensions for most of these and its
// order is not useful.
var preferredExtensions = map[string]string{
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"image/avif":       ".avif",
	"image/heic":       ".heic",
	"image/svg+xml":    ".svg",
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/quicktime":  ".mov",
	"video/x-matroska": ".mkv",
	"video/x-msvideo":  ".avi",
	"video/mpeg":       ".mpeg",
	"audio/mpeg":       ".mp3",
	"audio/mp4":        ".m4a",
	"application/pdf":  ".pdf",
}

// ExtensionForContentType returns a file extension including the leading
// dot, or "" when none is known
func ExtensionForContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if ext, ok := preferredExtensions[mediaType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

func extensionFor(metadata *KeyMetadata) string {
	if metadata == nil {
		return ""
	}
	return ExtensionForContentType(metadata.ContentType)
}
