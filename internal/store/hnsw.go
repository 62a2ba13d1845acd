package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore implements VectorStore using the coder/hnsw pure Go HNSW graph.
// Level tags are stored alongside the ID mappings so the level predicate is
// applied inside the store (with progressive over-fetch) rather than by
// callers trimming results, preserving top-K recall under filtering.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	// ID mapping (string <-> uint64) plus the level tag per vector.
	idMap   map[string]uint64
	keyMap  map[uint64]string
	levels  map[uint64]Level
	nextKey uint64

	closed bool
}

// hnswMetadata stores ID mappings and level tags for persistence.
type hnswMetadata struct {
	IDMap   map[string]uint64
	Levels  map[uint64]Level
	NextKey uint64
	Config  VectorStoreConfig
}

// Verify interface implementation at compile time.
var _ VectorStore = (*HNSWStore)(nil)

// NewHNSWStore creates a new HNSW-based vector store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		levels: make(map[uint64]Level),
	}, nil
}

// Add inserts vectors with their chunk IDs and level tags.
// Existing IDs are updated via lazy deletion (old key is orphaned).
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32, levels []Level) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(levels) != 0 && len(levels) != len(ids) {
		return fmt.Errorf("ids and levels length mismatch: %d vs %d", len(ids), len(levels))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		// Lazy deletion on update: orphan the old key instead of removing
		// the node, which coder/hnsw handles poorly for the last node.
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.levels, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[id] = key
		s.keyMap[key] = id
		if len(levels) > 0 {
			s.levels[key] = levels[i]
		} else {
			s.levels[key] = LevelBeginner
		}
	}

	return nil
}

// Search finds the k nearest neighbors among chunks whose level is in the
// allowed set. When filtering, the graph is over-fetched progressively so
// the caller still receives up to k matching results.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int, allowed []Level) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []*VectorResult{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalizedQuery)
	}

	allowedSet := make(map[Level]bool, len(allowed))
	for _, lv := range allowed {
		allowedSet[lv] = true
	}

	fetch := k
	total := s.graph.Len()
	for {
		nodes := s.graph.Search(normalizedQuery, fetch)

		results := make([]*VectorResult, 0, k)
		for _, node := range nodes {
			id, exists := s.keyMap[node.Key]
			if !exists {
				continue // lazy-deleted orphan
			}
			if len(allowedSet) > 0 && !allowedSet[s.levels[node.Key]] {
				continue
			}

			distance := s.graph.Distance(normalizedQuery, node.Value)
			results = append(results, &VectorResult{
				ID:    id,
				Score: distanceToScore(distance, s.config.Metric),
			})
			if len(results) == k {
				return results, nil
			}
		}

		if fetch >= total {
			return results, nil
		}
		fetch *= 2
		if fetch > total {
			fetch = total
		}
	}
}

// Delete removes vectors by ID using lazy deletion.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.levels, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Count returns the number of valid vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Save persists the graph and ID mappings to disk (temp file + rename).
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *HNSWStore) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:   s.idMap,
		Levels:  s.levels,
		NextKey: s.nextKey,
		Config:  s.config,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and ID mappings from disk.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}
	return nil
}

func (s *HNSWStore) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode hnsw metadata: %w", err)
	}

	s.idMap = meta.IDMap
	s.levels = meta.Levels
	s.nextKey = meta.NextKey
	s.config = meta.Config
	if s.levels == nil {
		s.levels = make(map[uint64]Level)
	}
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases resources.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a distance into a similarity in [0,1].
// For cosine distance: similarity = 1 - distance, clamped.
// For L2 distance: similarity = 1 / (1 + distance).
func distanceToScore(distance float32, metric string) float32 {
	var score float32
	switch metric {
	case "l2":
		score = 1.0 / (1.0 + distance)
	default:
		score = 1.0 - distance
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}
