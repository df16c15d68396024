// Package prompts loads system prompt templates by file name.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/karlnotmarx/synthec/internal/storage"
)

// DefaultName is the system prompt used for dataset generation.
const DefaultName = "sentiment_prompt.md"

//go:embed templates/*.md
var embedded embed.FS

// Loader reads prompts from Dir, falling back to the templates compiled into the binary.
type Loader struct {
	Dir string
}

// NewLoader returns a Loader rooted at dir. An empty dir uses the embedded templates only.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// Load returns the prompt text stored under name.
func (l *Loader) Load(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid prompt name %q", name)
	}

	if l.Dir != "" {
		data, err := os.ReadFile(filepath.Join(l.Dir, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read prompt %s: %w", name, err)
		}
	}

	data, err := embedded.ReadFile("templates/" + name)
	if err != nil {
		return "", &storage.MissingFileError{Path: filepath.Join(l.Dir, name)}
	}
	return string(data), nil
}

// UserPrompt is the per-call instruction sent alongside the system prompt.
func UserPrompt(batchSize int) string {
	return fmt.Sprintf(
		"Generate %d earnings call excerpt paragraphs with a mix of positive, negative and neutral labels.\n"+
			"Return ONLY JSON array (no markdown).", batchSize)
}
