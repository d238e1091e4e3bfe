// Package manifest fetches the remote index of SDK environments and merges
// it into the registry.
//
// The index is a JSON array:
//
//	[{"version": "2.5.0", "toolchains": [{"version": "1", "name": "ncs-toolchain-x86_64-linux.zip", "sha512": "..."}]}]
//
// When a keyring is configured, a detached OpenPGP signature published at
// <index URL>.sig must verify against it before the index is trusted.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/environment"
	"github.com/ZebulonRouseFrantzich/envmgr/internal/logging"
)

const (
	// DefaultTimeout bounds the whole index request.
	DefaultTimeout = 30 * time.Second
	// SignatureSuffix is appended to the index URL to locate its signature.
	SignatureSuffix = ".sig"
	// maxIndexSize caps the index body; real indexes are a few KiB.
	maxIndexSize = 16 << 20
)

var (
	// ErrManifestFetch is matched by every *FetchError.
	ErrManifestFetch = errors.New("failed to fetch environment index")
	// ErrManifestParse is returned when the index is not the expected JSON shape.
	ErrManifestParse = errors.New("failed to parse environment index")
	// ErrManifestSignature is returned when the detached signature does not verify.
	ErrManifestSignature = errors.New("environment index signature verification failed")
)

// FetchError describes a failed index request. StatusCode is zero when the
// request never got a response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("unable to fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("unable to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrManifestFetch) true for every FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrManifestFetch
}

// Entry is one environment of the index.
type Entry struct {
	Version    string                  `json:"version"`
	Toolchains []environment.Toolchain `json:"toolchains"`
}

// Options configures a Fetcher.
type Options struct {
	URL     string
	Timeout time.Duration
	// KeyringPath enables signature verification when non-empty.
	KeyringPath string
	Client      *http.Client
	Logger      logging.Logger
}

// Fetcher downloads and merges the environment index.
type Fetcher struct {
	url      string
	client   *http.Client
	verifier *SignatureVerifier
	log      logging.Logger
}

// NewFetcher creates a fetcher. A nil Client gets a fresh one with the
// configured timeout.
func NewFetcher(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	f := &Fetcher{
		url:    opts.URL,
		client: client,
		log:    logging.OrNop(opts.Logger),
	}
	if opts.KeyringPath != "" {
		f.verifier = NewSignatureVerifier(opts.KeyringPath)
	}
	return f
}

// Fetch downloads and parses the index without touching any registry.
func (f *Fetcher) Fetch(ctx context.Context) ([]Entry, error) {
	body, err := f.get(ctx, f.url)
	if err != nil {
		return nil, err
	}

	if f.verifier != nil {
		sig, err := f.get(ctx, f.url+SignatureSuffix)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifestSignature, err)
		}
		if err := f.verifier.Verify(body, sig); err != nil {
			return nil, err
		}
		f.log.Debug("environment index signature verified", "url", f.url)
	}

	return Parse(body)
}

// Publish fetches the index and merges it into store: environments are
// upserted newest first without toolchains, then each environment's
// toolchains are merged in name order.
func (f *Fetcher) Publish(ctx context.Context, store *environment.Store) error {
	entries, err := f.Fetch(ctx)
	if err != nil {
		return err
	}
	return Merge(store, entries)
}

// Merge upserts entries into store.
func Merge(store *environment.Store, entries []Entry) error {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return environment.CompareVersions(sorted[i].Version, sorted[j].Version) < 0
	})

	for _, e := range sorted {
		if err := store.Upsert(&environment.Patch{Version: e.Version}); err != nil {
			return fmt.Errorf("merge environment %q: %w", e.Version, err)
		}
	}

	for _, e := range sorted {
		toolchains := append([]environment.Toolchain(nil), e.Toolchains...)
		sort.SliceStable(toolchains, func(i, j int) bool {
			return toolchains[i].Name < toolchains[j].Name
		})
		for _, tc := range toolchains {
			if err := store.UpsertToolchain(e.Version, tc); err != nil {
				return fmt.Errorf("merge toolchain %q of %s: %w", tc.Version, e.Version, err)
			}
		}
	}
	return nil
}

// Parse decodes an index body. Every environment needs a version and every
// toolchain a version.
func Parse(body []byte) ([]Entry, error) {
	var entries []Entry
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
	}

	for i, e := range entries {
		if e.Version == "" {
			return nil, fmt.Errorf("%w: entry %d has no version", ErrManifestParse, i)
		}
		for _, tc := range e.Toolchains {
			if tc.Version == "" {
				return nil, fmt.Errorf("%w: toolchain of %s has no version", ErrManifestParse, e.Version)
			}
		}
	}
	return entries, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("pragma", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexSize))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
