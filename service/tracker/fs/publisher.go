package fs

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/service/formatter"
	"github.com/sentinelops/gatekeeper/service/tracker"
)

// Publisher writes rendered decision requests to a filesystem drop directory
// watched by an external bridge (or reviewed directly by operators). Useful
// when no tracker API is reachable from the deployment environment.
type Publisher struct {
	basePath string
	fs       afs.Service
	mu       sync.Mutex
}

var _ tracker.Publisher = (*Publisher)(nil)

// New creates a filesystem publisher rooted at basePath.
func New(basePath string) (*Publisher, error) {
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
	return &Publisher{basePath: basePath, fs: fs}, nil
}

// Publish writes the rendered body under the record's archive path. Writing
// twice for the same decision ID overwrites the same file, keeping the
// operation idempotent.
func (p *Publisher) Publish(ctx context.Context, record *decision.Record, body string) (*tracker.Reference, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := path.Join(p.basePath, formatter.Path(record))
	if err := p.fs.Upload(ctx, filePath, file.DefaultFileOsMode, strings.NewReader(body)); err != nil {
		return nil, fmt.Errorf("%w: failed to write request %s: %v", decision.ErrPublishUnavailable, filePath, err)
	}
	return &tracker.Reference{ID: record.ID, URL: filePath}, nil
}

// Update appends a status note next to the published request.
func (p *Publisher) Update(ctx context.Context, ref *tracker.Reference, status decision.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := ref.URL + ".status"
	note := fmt.Sprintf("status: %s\n", status)
	if err := p.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader([]byte(note))); err != nil {
		return fmt.Errorf("%w: failed to write status %s: %v", decision.ErrPublishUnavailable, filePath, err)
	}
	return nil
}
