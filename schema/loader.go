package schema

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/intentflow/internal/tlsutil"
)

// DefaultMaxDocumentBytes caps a single schema source.
const DefaultMaxDocumentBytes int64 = 16 << 20

// DefaultMaxNodes caps the resolved document, counting every copy made for
// an alias or a $ref.
const DefaultMaxNodes = 1_000_000

// DocumentLoader is satisfied by Loader and CachedLoader.
type DocumentLoader interface {
	Load(ctx context.Context, source string) (*Document, error)
}

// Loader reads schema sources (file paths or http(s) URLs), parses YAML or
// JSON and resolves every $ref into a self-contained Document.
type Loader struct {
	client   *http.Client
	maxBytes int64
	maxNodes int
	logger   *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHTTPClient replaces the client used for URL sources.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithMaxDocumentBytes bounds the size of each source read.
func WithMaxDocumentBytes(n int64) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithMaxNodes bounds the number of nodes a resolved document may expand to.
func WithMaxNodes(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxNodes = n
		}
	}
}

// WithLogger sets the loader logger.
func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		client:   tlsutil.SecureHTTPClient(30 * time.Second),
		maxBytes: DefaultMaxDocumentBytes,
		maxNodes: DefaultMaxNodes,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "schema_loader"))
	return l
}

// Load reads source and returns its fully dereferenced document.
func (l *Loader) Load(ctx context.Context, source string) (*Document, error) {
	if strings.TrimSpace(source) == "" {
		return nil, &SchemaLoadError{Source: source, Cause: errors.New("empty source")}
	}
	location := normalizeLocation(source)
	data, err := l.read(ctx, location)
	if err != nil {
		return nil, &SchemaLoadError{Source: source, Cause: err}
	}
	return l.LoadBytes(ctx, location, data)
}

// LoadBytes parses data as the document named name. Relative external
// references are resolved against name; when name is empty only internal
// references can be resolved.
func (l *Loader) LoadBytes(ctx context.Context, name string, data []byte) (*Document, error) {
	root, err := parseDocument(data)
	if err != nil {
		return nil, &SchemaLoadError{Source: name, Cause: err}
	}

	start := time.Now()
	r := newResolver(ctx, l, name, root)
	resolved, err := r.resolve(root, name, "")
	if err != nil {
		return nil, err
	}

	l.logger.Debug("schema resolved",
		zap.String("source", name),
		zap.Int("refs", r.refCount),
		zap.Int("nodes", r.nodes),
		zap.Int("external_documents", len(r.docs)-1),
		zap.Duration("duration", time.Since(start)),
	)
	return &Document{source: name, root: resolved}, nil
}

// parseDocument parses YAML (JSON is a YAML subset) and returns the root
// mapping node.
func parseDocument(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	root := deref(unwrapDocument(&doc))
	if root == nil || root.Kind == 0 {
		return nil, errors.New("document is empty")
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("document root must be a mapping, got %s", kindName(root.Kind))
	}
	return root, nil
}

func (l *Loader) read(ctx context.Context, location string) ([]byte, error) {
	if isURL(location) {
		return l.fetch(ctx, location)
	}
	f, err := os.Open(location)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f, l.maxBytes)
}

func (l *Loader) fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/yaml, application/json;q=0.9, */*;q=0.5")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", location, resp.StatusCode)
	}
	return readLimited(resp.Body, l.maxBytes)
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("document exceeds %d bytes", max)
	}
	return data, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func normalizeLocation(source string) string {
	if isURL(source) {
		return source
	}
	return filepath.Clean(strings.TrimPrefix(source, "file://"))
}

// joinLocation resolves ref (the part of a $ref before '#') against base.
func joinLocation(base, ref string) (string, error) {
	if isURL(ref) {
		return ref, nil
	}
	if isURL(base) {
		b, err := url.Parse(base)
		if err != nil {
			return "", err
		}
		r, err := url.Parse(ref)
		if err != nil {
			return "", err
		}
		return b.ResolveReference(r).String(), nil
	}
	ref = strings.TrimPrefix(ref, "file://")
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref), nil
	}
	if base == "" {
		return "", errors.New("relative reference in a document without a location")
	}
	return filepath.Join(filepath.Dir(base), ref), nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
