package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/athapong/fingraph/pkg/graph"
	"github.com/pkg/errors"
)

// GraphStore defines an interface for storing knowledge graphs
type GraphStore interface {
	// StoreGraph persists a knowledge graph
	StoreGraph(ctx context.Context, graph *graph.KnowledgeGraphData) error

	// LoadGraph loads a knowledge graph from storage
	LoadGraph(ctx context.Context) (*graph.KnowledgeGraphData, error)
}

// JSONGraphStore implements GraphStore using JSON files
type JSONGraphStore struct {
	filePath string
}

// NewJSONGraphStore creates a new JSON graph store
func NewJSONGraphStore(filePath string) *JSONGraphStore {
	return &JSONGraphStore{
		filePath: filePath,
	}
}

// Path returns the file the store writes to.
func (s *JSONGraphStore) Path() string {
	return s.filePath
}

// StoreGraph writes the graph as indented JSON. The file is replaced
// atomically so readers never see a partial graph.
func (s *JSONGraphStore) StoreGraph(ctx context.Context, g *graph.KnowledgeGraphData) error {
	if g == nil {
		return errors.New("cannot store nil graph")
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create directory %s", dir)
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode graph")
	}

	tmp, err := os.CreateTemp(dir, ".graph-*.json")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write graph")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	return errors.Wrapf(os.Rename(tmp.Name(), s.filePath), "replace %s", s.filePath)
}

// LoadGraph loads a knowledge graph from a JSON file
func (s *JSONGraphStore) LoadGraph(ctx context.Context) (*graph.KnowledgeGraphData, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.filePath)
	}

	var g graph.KnowledgeGraphData
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, errors.Wrapf(err, "decode %s", s.filePath)
	}
	return &g, nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// WriteEnhancedDocuments writes one <document id>.txt file per enhanced
// document into dir.
func WriteEnhancedDocuments(dir string, docs []graph.EnhancedDocument) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create directory %s", dir)
	}
	for _, d := range docs {
		name := unsafeFileChars.ReplaceAllString(d.DocumentID, "_")
		if name == "" {
			name = "document"
		}
		path := filepath.Join(dir, name+".txt")
		if err := os.WriteFile(path, []byte(d.Text), 0644); err != nil {
			return errors.Wrapf(err, "write %s", path)
		}
	}
	return nil
}
