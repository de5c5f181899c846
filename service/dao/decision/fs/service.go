package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"

	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/service/dao"
)

// Service implements a filesystem-based decision snapshot storage. One JSON
// document per decision ID; the snapshot is a cache rebuildable from the
// audit log so losing a file is recoverable.
type Service struct {
	basePath string
	fs       afs.Service
	mu       sync.RWMutex
}

// Ensure Service implements dao.Service
var _ dao.Service[string, decision.Record] = (*Service)(nil)

// Save persists a decision record to the filesystem.
func (s *Service) Save(ctx context.Context, record *decision.Record) error {
	if record == nil {
		return dao.ErrNilEntity
	}
	if record.ID == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	filePath := s.recordPath(record.ID)
	if err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: failed to save decision to %s: %v", decision.ErrStorageUnavailable, filePath, err)
	}
	return nil
}

// Load retrieves a decision record from the filesystem.
func (s *Service) Load(ctx context.Context, id string) (*decision.Record, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := s.recordPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to check decision file: %v", decision.ErrStorageUnavailable, err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}

	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read decision file: %v", decision.ErrStorageUnavailable, err)
	}

	var record decision.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision %s: %w", id, err)
	}
	return &record, nil
}

// Delete removes a decision record from the filesystem.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.recordPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("%w: failed to check decision file: %v", decision.ErrStorageUnavailable, err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("%w: failed to delete decision file: %v", decision.ErrStorageUnavailable, err)
	}
	return nil
}

// List returns all decision records from the filesystem.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*decision.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list decision files: %v", decision.ErrStorageUnavailable, err)
	}

	var records []*decision.Record
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			log.Printf("error reading decision file %s: %v", object.URL(), err)
			continue
		}
		var record decision.Record
		if err := json.Unmarshal(data, &record); err != nil {
			log.Printf("error unmarshaling decision from %s: %v", object.URL(), err)
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

// recordPath returns the file path for a decision record
func (s *Service) recordPath(id string) string {
	return path.Join(s.basePath, fmt.Sprintf("%s.json", id))
}

// New creates a new filesystem decision storage service
func New(basePath string) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	fs := afs.New()

	ctx := context.Background()
	exists, _ := fs.Exists(ctx, basePath)
	if !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}

	basePath = url.Normalize(basePath, file.Scheme)

	return &Service{
		basePath: basePath,
		fs:       fs,
	}, nil
}
