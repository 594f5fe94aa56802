package downloads

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/assetdrop-backend/internal/products"
	"github.com/angelmondragon/assetdrop-backend/pkg/config"
)

// ErrNoFileStore is returned when neither a bucket nor a static base URL is
// configured.
var ErrNoFileStore = errors.New("no file store configured")

// FileLocator turns a purchased file into a URL the buyer can fetch.
type FileLocator interface {
	Locate(ctx context.Context, file products.File) (string, error)
}

// URLSigner issues time-limited object URLs; *gcs.Client satisfies it.
type URLSigner interface {
	DefaultBucket() string
	SignedURL(bucket, object, fileName string, expires time.Duration) (string, error)
}

// NewFileLocator prefers signed bucket URLs and falls back to the static base
// URL. signer may be nil.
func NewFileLocator(signer URLSigner, cfg config.DownloadsConfig) FileLocator {
	if signer != nil && signer.DefaultBucket() != "" {
		return &signedLocator{signer: signer, expiry: cfg.URLExpiry}
	}
	if base := strings.TrimSpace(cfg.StaticBaseURL); base != "" {
		return &staticLocator{base: strings.TrimRight(base, "/")}
	}
	return unconfiguredLocator{}
}

type signedLocator struct {
	signer URLSigner
	expiry time.Duration
}

func (l *signedLocator) Locate(_ context.Context, file products.File) (string, error) {
	expiry := l.expiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return l.signer.SignedURL(l.signer.DefaultBucket(), file.Key, file.Name, expiry)
}

type staticLocator struct {
	base string
}

func (l *staticLocator) Locate(_ context.Context, file products.File) (string, error) {
	parts := strings.Split(strings.TrimLeft(file.Key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return l.base + "/" + strings.Join(parts, "/"), nil
}

type unconfiguredLocator struct{}

func (unconfiguredLocator) Locate(context.Context, products.File) (string, error) {
	return "", ErrNoFileStore
}
