package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"

	"github.com/sentinelops/gatekeeper/internal/clock"
	"github.com/sentinelops/gatekeeper/internal/idgen"
	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/service/audit"
	"github.com/sentinelops/gatekeeper/service/dao"
)

// Log implements a filesystem-based audit.Log on top of viant/afs. Each event
// is an immutable JSON document under <basePath>/<decisionID>/<seq>.json –
// append-only by construction, events are never rewritten.
type Log struct {
	basePath string
	fs       afs.Service
	mu       sync.Mutex
	seq      map[string]int // next seq per decision, recovered lazily
}

var _ audit.Log = (*Log)(nil)

// New creates a filesystem audit log rooted at basePath.
func New(basePath string) (*Log, error) {
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
	return &Log{basePath: basePath, fs: fs, seq: make(map[string]int)}, nil
}

// Append persists the event as a new immutable document.
func (l *Log) Append(ctx context.Context, event *audit.Event) error {
	if event == nil {
		return dao.ErrNilEntity
	}
	if event.DecisionID == "" {
		return dao.ErrInvalidID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq, err := l.nextSeq(ctx, event.DecisionID)
	if err != nil {
		return err
	}

	stored := *event
	if stored.ID == "" {
		stored.ID = idgen.New()
	}
	if stored.At.IsZero() {
		stored.At = clock.Now()
	}
	stored.Seq = seq

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	filePath := l.eventPath(event.DecisionID, seq)
	if err = l.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: failed to write audit event %s: %v", decision.ErrStorageUnavailable, filePath, err)
	}
	l.seq[event.DecisionID] = seq + 1

	event.ID = stored.ID
	event.Seq = stored.Seq
	event.At = stored.At
	return nil
}

// Query returns the decision's events ordered by sequence number.
func (l *Log) Query(ctx context.Context, decisionID string) ([]*audit.Event, error) {
	if decisionID == "" {
		return nil, dao.ErrInvalidID
	}
	events, err := l.readDir(ctx, path.Join(l.basePath, decisionID))
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

// QueryAll returns all events passing the filter, ordered by time.
func (l *Log) QueryAll(ctx context.Context, filter *audit.Filter) ([]*audit.Event, error) {
	all, err := l.readDir(ctx, l.basePath)
	if err != nil {
		return nil, err
	}
	out := make([]*audit.Event, 0, len(all))
	for _, event := range all {
		if filter.Matches(event) {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].At.Before(out[j].At)
	})
	return out, nil
}

func (l *Log) readDir(ctx context.Context, dir string) ([]*audit.Event, error) {
	exists, err := l.fs.Exists(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to check audit directory: %v", decision.ErrStorageUnavailable, err)
	}
	if !exists {
		return nil, nil
	}
	objects, err := l.fs.List(ctx, dir, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list audit events: %v", decision.ErrStorageUnavailable, err)
	}
	var events []*audit.Event
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := l.fs.Download(ctx, object)
		if err != nil {
			log.Printf("error reading audit event %s: %v", object.URL(), err)
			continue
		}
		var event audit.Event
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("error unmarshaling audit event from %s: %v", object.URL(), err)
			continue
		}
		events = append(events, &event)
	}
	return events, nil
}

// nextSeq returns the next sequence number for a decision, recovering the
// counter from storage on first use after a restart.
func (l *Log) nextSeq(ctx context.Context, decisionID string) (int, error) {
	if seq, ok := l.seq[decisionID]; ok {
		return seq, nil
	}
	events, err := l.readDir(ctx, path.Join(l.basePath, decisionID))
	if err != nil {
		return 0, err
	}
	max := 0
	for _, event := range events {
		if event.Seq > max {
			max = event.Seq
		}
	}
	return max + 1, nil
}

func (l *Log) eventPath(decisionID string, seq int) string {
	return path.Join(l.basePath, decisionID, fmt.Sprintf("%06d.json", seq))
}
