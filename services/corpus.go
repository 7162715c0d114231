package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phuslu/log"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

// DirectorySource reads every supported file at the top level of a
// directory, in file name order. The file name is the document ID.
type DirectorySource struct {
	dir       string
	extractor TextExtractor
}

func NewDirectorySource(dir string, extractor TextExtractor) *DirectorySource {
	return &DirectorySource{dir: dir, extractor: extractor}
}

func (s *DirectorySource) Dir() string { return s.dir }

// Files lists the supported files of the directory, sorted by name. A
// missing directory is an empty library.
func (s *DirectorySource) Files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Documents extracts the text of every file. Files whose text comes out
// empty are left out.
func (s *DirectorySource) Documents(ctx context.Context) ([]models.Document, error) {
	names, err := s.Files()
	if err != nil {
		return nil, err
	}
	docs := make([]models.Document, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(s.dir, name)
		text := s.extractor.Extract(path)
		if strings.TrimSpace(text) == "" {
			log.Warn().Str("file", path).Msg("no text extracted")
			continue
		}
		docs = append(docs, models.Document{ID: name, Path: path, Text: text})
	}
	log.Info().Str("dir", s.dir).Int("files", len(names)).Int("documents", len(docs)).Msg("reference library read")
	return docs, nil
}
