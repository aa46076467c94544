// Package recordservice reads a converted output tree for the browse API and
// the MCP server.
package recordservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/starford/avlog/internal/apperr"
	"github.com/starford/avlog/internal/checksum"
	"github.com/starford/avlog/internal/index"
	"github.com/starford/avlog/internal/models"
	"github.com/starford/avlog/internal/storage"
)

// RecordDetail is one per-record document with its content checksum.
type RecordDetail struct {
	Path     string          `json:"path"`
	Checksum string          `json:"checksum"`
	Record   json.RawMessage `json:"record"`
}

// Service reads the output tree and, when configured, the record catalog.
type Service struct {
	store         storage.Provider
	catalog       index.Catalog
	aggregateName string

	mu   sync.RWMutex
	last *models.Summary
}

// NewService creates a service over store. catalog may be nil.
func NewService(store storage.Provider, catalog index.Catalog, aggregateName string) *Service {
	return &Service{store: store, catalog: catalog, aggregateName: aggregateName}
}

// Root returns the output root the service reads.
func (s *Service) Root() string { return s.store.Root() }

// AggregateName returns the aggregate document's name in the tree.
func (s *Service) AggregateName() string { return s.aggregateName }

// Frames returns the aggregate document as written.
func (s *Service) Frames(_ context.Context) (json.RawMessage, error) {
	data, err := s.read(s.aggregateName)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Hours lists the hour buckets present in the tree with their file counts,
// in ascending hour order.
func (s *Service) Hours(_ context.Context) ([]index.HourCount, error) {
	dirs, err := s.store.Dirs("")
	if err != nil {
		return nil, err
	}
	out := []index.HourCount{}
	for _, d := range dirs {
		h, ok := parseHour(d)
		if !ok {
			continue
		}
		entries, err := s.store.List(d)
		if err != nil {
			return nil, err
		}
		out = append(out, index.HourCount{Hour: h, Records: len(entries)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out, nil
}

// Records lists the record files of one hour bucket, by file name.
func (s *Service) Records(_ context.Context, hour int) ([]storage.Entry, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: hour %d out of range", apperr.ErrInvalidQuery, hour)
	}
	entries, err := s.store.List(strconv.Itoa(hour))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	return entries, nil
}

// Record returns one record document from an hour bucket.
func (s *Service) Record(_ context.Context, hour int, name string) (*RecordDetail, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("%w: hour %d out of range", apperr.ErrInvalidQuery, hour)
	}
	if name == "" || strings.ContainsAny(name, `/\`) || !strings.HasSuffix(name, ".json") {
		return nil, fmt.Errorf("%w: bad record name %q", apperr.ErrInvalidQuery, name)
	}
	p := path.Join(strconv.Itoa(hour), name)
	data, err := s.read(p)
	if err != nil {
		return nil, err
	}
	return &RecordDetail{Path: p, Checksum: checksum.Sum(data), Record: json.RawMessage(data)}, nil
}

// Query returns catalogued records with from <= timestamp < to.
func (s *Service) Query(_ context.Context, from, to time.Time, limit int) ([]index.RecordRow, error) {
	if s.catalog == nil {
		return nil, apperr.ErrNoCatalog
	}
	rows, err := s.catalog.RecordsBetween(from, to, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []index.RecordRow{}
	}
	return rows, nil
}

// Stats returns catalog totals.
func (s *Service) Stats(_ context.Context) (index.Stats, error) {
	if s.catalog == nil {
		return index.Stats{}, apperr.ErrNoCatalog
	}
	return s.catalog.Stats()
}

// SetLastRun remembers the summary of the most recent conversion.
func (s *Service) SetLastRun(summary models.Summary) {
	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()
}

// LastRun returns the most recent conversion seen by this process, falling
// back to the catalog.
func (s *Service) LastRun(_ context.Context) (*models.Summary, error) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last != nil {
		cp := *last
		return &cp, nil
	}
	if s.catalog == nil {
		return nil, apperr.ErrNotFound
	}
	return s.catalog.LastRun()
}

func (s *Service) read(p string) ([]byte, error) {
	data, err := s.store.Read(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.ErrNotFound
	}
	return data, err
}

// parseHour accepts the unpadded bucket names "0" through "23".
func parseHour(name string) (int, bool) {
	h, err := strconv.Atoi(name)
	if err != nil || h < 0 || h > 23 || strconv.Itoa(h) != name {
		return 0, false
	}
	return h, true
}
