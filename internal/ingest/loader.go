// Package ingest loads lesson corpus files into chunks. A corpus is a
// directory tree of YAML files, each carrying document-level metadata and
// a list of content chunks.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	kerrors "github.com/kotoba-ai/kotoba/internal/errors"
	"github.com/kotoba-ai/kotoba/internal/store"
)

// corpusFile is the YAML layout of one lesson file. Document metadata
// applies to every chunk unless the chunk overrides it.
type corpusFile struct {
	Title        string   `yaml:"title"`
	Level        string   `yaml:"level"`
	Category     string   `yaml:"category"`
	SourceDomain string   `yaml:"source_domain"`
	URL          string   `yaml:"url"`
	Topics       []string `yaml:"topics"`
	Chunks       []struct {
		ID      string   `yaml:"id"`
		Content string   `yaml:"content"`
		Level   string   `yaml:"level"`
		Tags    []string `yaml:"tags"`
	} `yaml:"chunks"`
}

// Loader reads corpus directories.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a corpus loader.
func NewLoader() *Loader {
	return &Loader{
		logger: slog.Default().With(slog.String("component", "ingest")),
	}
}

// Load reads every YAML file under dir and returns the chunks in a
// deterministic order (file path, then position in file). A file that
// fails to parse aborts the load; a silently half-indexed corpus is worse
// than an error.
func (l *Loader) Load(dir string) ([]*store.Chunk, error) {
	files, err := corpusFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, kerrors.New(kerrors.ErrCodeCorpusLoad,
			fmt.Sprintf("no corpus files found in %s", dir), nil).
			WithSuggestion("add .yaml lesson files to the corpus directory")
	}

	var chunks []*store.Chunk
	seen := make(map[string]string)
	for _, path := range files {
		fileChunks, err := l.loadFile(dir, path)
		if err != nil {
			return nil, err
		}
		for _, c := range fileChunks {
			if prev, dup := seen[c.ID]; dup {
				return nil, kerrors.New(kerrors.ErrCodeCorpusLoad,
					fmt.Sprintf("duplicate chunk id %q in %s (also in %s)", c.ID, path, prev), nil)
			}
			seen[c.ID] = path
		}
		chunks = append(chunks, fileChunks...)
	}

	l.logger.Info("corpus loaded",
		slog.String("dir", dir),
		slog.Int("files", len(files)),
		slog.Int("chunks", len(chunks)))

	return chunks, nil
}

func (l *Loader) loadFile(root, path string) ([]*store.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerrors.New(kerrors.ErrCodeCorpusLoad,
			fmt.Sprintf("failed to read %s", path), err)
	}

	var file corpusFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, kerrors.New(kerrors.ErrCodeCorpusLoad,
			fmt.Sprintf("failed to parse %s", path), err)
	}
	if len(file.Chunks) == 0 {
		return nil, kerrors.New(kerrors.ErrCodeCorpusLoad,
			fmt.Sprintf("%s contains no chunks", path), nil)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	base := strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
	docLevel := store.ParseLevel(file.Level)

	chunks := make([]*store.Chunk, 0, len(file.Chunks))
	for i, raw := range file.Chunks {
		content := strings.TrimSpace(raw.Content)
		if content == "" {
			return nil, kerrors.New(kerrors.ErrCodeCorpusLoad,
				fmt.Sprintf("%s chunk %d has empty content", path, i), nil)
		}

		id := raw.ID
		if id == "" {
			id = fmt.Sprintf("%s#%d", base, i)
		}
		level := docLevel
		if raw.Level != "" {
			level = store.ParseLevel(raw.Level)
		}

		chunks = append(chunks, &store.Chunk{
			ID:      id,
			Content: content,
			Metadata: store.Metadata{
				Title:        file.Title,
				Level:        level,
				Category:     file.Category,
				SourceDomain: file.SourceDomain,
				URL:          file.URL,
				Topics:       file.Topics,
			},
			Tags: raw.Tags,
		})
	}
	return chunks, nil
}

// CorpusVersion hashes every corpus file's contents into one version
// string, so index staleness can be detected without re-embedding.
func CorpusVersion(dir string) (string, error) {
	files, err := corpusFiles(dir)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", kerrors.New(kerrors.ErrCodeCorpusLoad,
				fmt.Sprintf("failed to read %s", path), err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		h.Write([]byte(filepath.ToSlash(rel)))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// corpusFiles returns the YAML files under dir sorted by path.
func corpusFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, kerrors.New(kerrors.ErrCodeCorpusLoad,
			fmt.Sprintf("failed to scan corpus directory %s", dir), err)
	}
	sort.Strings(files)
	return files, nil
}
