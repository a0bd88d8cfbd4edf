package persona

import (
	"context"
	_ "embed"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/Dev-Marygold/Laffey/pkg/utils/safe"
	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed default_persona.md
var defaultPersona string

// Default returns the built-in persona text
func Default() string {
	return defaultPersona
}

// Source loads persona text from somewhere
type Source interface {
	Load(ctx context.Context) (string, error)
	String() string
}

type fileSource struct {
	path string
}

func (s *fileSource) Load(ctx context.Context) (string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read persona file", goerr.V("path", s.path))
	}
	return string(raw), nil
}

func (s *fileSource) String() string { return s.path }

type gcsSource struct {
	bucket string
	object string
}

func (s *gcsSource) Load(ctx context.Context) (string, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create storage client")
	}
	defer safe.Close(ctx, client)

	reader, err := client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open persona object",
			goerr.V("bucket", s.bucket),
			goerr.V("object", s.object))
	}
	defer safe.Close(ctx, reader)

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read persona object",
			goerr.V("bucket", s.bucket),
			goerr.V("object", s.object))
	}
	return string(raw), nil
}

func (s *gcsSource) String() string { return "gs://" + s.bucket + "/" + s.object }

// ParseSource interprets location as "gs://bucket/object" or a local path.
// An empty location means the built-in persona only.
func ParseSource(location string) (Source, error) {
	switch {
	case location == "":
		return nil, nil
	case strings.HasPrefix(location, "gs://"):
		bucket, object, ok := strings.Cut(strings.TrimPrefix(location, "gs://"), "/")
		if !ok || bucket == "" || object == "" {
			return nil, goerr.New("invalid persona location, expected gs://bucket/object", goerr.V("location", location))
		}
		return &gcsSource{bucket: bucket, object: object}, nil
	default:
		return &fileSource{path: location}, nil
	}
}

// Service holds the current persona text. Readers always see a complete
// text; a reload swaps it atomically and in-flight prompts keep the version
// they already read.
type Service struct {
	source Source

	mu          sync.RWMutex
	text        string
	usesDefault bool
}

// New loads the persona from source. A nil source, or a source that cannot
// be read at startup, leaves the built-in persona in place.
func New(ctx context.Context, source Source) *Service {
	s := &Service{
		source:      source,
		text:        defaultPersona,
		usesDefault: true,
	}

	if source == nil {
		logging.From(ctx).Info("no persona source configured, using built-in persona")
		return s
	}

	if err := s.Reload(ctx); err != nil {
		logging.From(ctx).Warn("failed to load persona, using built-in persona",
			"source", source.String(),
			"error", err.Error())
	}
	return s
}

// Text returns the current persona
func (s *Service) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

// UsesDefault reports whether the built-in persona is active
func (s *Service) UsesDefault() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usesDefault
}

// Reload reads the source again. On failure the current text is kept.
func (s *Service) Reload(ctx context.Context) error {
	if s.source == nil {
		return goerr.New("no persona source configured")
	}

	text, err := s.source.Load(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return goerr.New("persona source is empty", goerr.V("source", s.source.String()))
	}

	s.mu.Lock()
	s.text = text
	s.usesDefault = false
	s.mu.Unlock()

	logging.From(ctx).Info("persona loaded", "source", s.source.String(), "length", len(text))
	return nil
}

const watchDebounce = 500 * time.Millisecond

// Watch reloads the persona when a local persona file changes, until ctx is
// cancelled. Remote sources are not watched.
func (s *Service) Watch(ctx context.Context) error {
	fs, ok := s.source.(*fileSource)
	if !ok {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return goerr.Wrap(err, "failed to create persona watcher")
	}
	if err := watcher.Add(fs.path); err != nil {
		_ = watcher.Close()
		return goerr.Wrap(err, "failed to watch persona file", goerr.V("path", fs.path))
	}

	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *Service) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	logger := logging.From(ctx)
	var debounce *time.Timer

	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
		_ = watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				if err := s.Reload(ctx); err != nil {
					logger.Error("failed to reload persona, keeping current", "error", err.Error())
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("persona watcher error", "error", err.Error())
		}
	}
}
