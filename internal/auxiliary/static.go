package auxiliary

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/invoice-recon/internal/model"
)

// StaticEntry is one canned signal. It matches a query when any of its keys
// occurs, case-insensitively, in the query key or text.
type StaticEntry struct {
	Keys      []string `yaml:"keys"`
	Title     string   `yaml:"title"`
	Reference string   `yaml:"reference"`
	Snippet   string   `yaml:"snippet"`
}

type staticFile struct {
	Signals []StaticEntry `yaml:"signals"`
}

// StaticSearcher serves vendor and compliance notes from a YAML file.
type StaticSearcher struct {
	entries []StaticEntry
}

// NewStaticSearcher creates a StaticSearcher over entries.
func NewStaticSearcher(entries []StaticEntry) *StaticSearcher {
	return &StaticSearcher{entries: entries}
}

// LoadStatic reads a signals file. A missing file yields an empty searcher.
func LoadStatic(path string) (*StaticSearcher, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("auxiliary: signals file not found, static provider is empty", zap.String("path", path))
		return NewStaticSearcher(nil), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "auxiliary: read %s", path)
	}

	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "auxiliary: parse %s", path)
	}
	return NewStaticSearcher(f.Signals), nil
}

// Name implements Searcher.
func (s *StaticSearcher) Name() string { return "static" }

// Search implements Searcher.
func (s *StaticSearcher) Search(ctx context.Context, q Query) ([]model.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	haystack := strings.ToLower(q.Key + "\n" + q.Text)

	var out []model.Signal
	for _, e := range s.entries {
		for _, k := range e.Keys {
			if k != "" && strings.Contains(haystack, strings.ToLower(k)) {
				out = append(out, model.Signal{Title: e.Title, Reference: e.Reference, Snippet: e.Snippet})
				break
			}
		}
	}
	return out, nil
}
