package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
)

const (
	pingTimeout = 5 * time.Second
	// V4 signatures are rejected by GCS beyond seven days.
	maxSignedURLExpiry = 7 * 24 * time.Hour
)

// Client signs download URLs for objects in the configured bucket.
type Client struct {
	storage        *storage.Client
	defaultBucket  string
	serviceAccount *serviceAccountInfo
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type serviceAccountInfo struct {
	clientEmail string
	privateKey  []byte
}

// NewClient opens a storage client. Service account JSON (inline or from
// GOOGLE_APPLICATION_CREDENTIALS) is also kept for offline signing; without it
// signing falls back to the IAM signBlob API through the client's identity.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	var (
		opts    []option.ClientOption
		rawJSON []byte
	)
	switch {
	case gcp.CredentialsJSON != "":
		rawJSON = []byte(gcp.CredentialsJSON)
	case gcp.ApplicationCredentials != "":
		bytes, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		rawJSON = bytes
	}

	var sa *serviceAccountInfo
	if len(rawJSON) > 0 {
		parsed, err := parseServiceAccount(rawJSON)
		if err != nil {
			return nil, err
		}
		sa = parsed
		opts = append(opts, option.WithCredentialsJSON(rawJSON))
	}

	sc, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	client := &Client{
		storage:        sc,
		defaultBucket:  cfg.BucketName,
		serviceAccount: sa,
	}

	if err := client.Ping(ctx); err != nil {
		_ = sc.Close()
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}
	return client, nil
}

func parseServiceAccount(raw []byte) (*serviceAccountInfo, error) {
	var creds struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("parsing service account credentials: %w", err)
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, errors.New("invalid service account credentials")
	}
	return &serviceAccountInfo{
		clientEmail: creds.ClientEmail,
		privateKey:  []byte(creds.PrivateKey),
	}, nil
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

// SignedURL returns a V4 GET URL for object that downloads as fileName.
func (c *Client) SignedURL(bucket, object, fileName string, expires time.Duration) (string, error) {
	if c == nil {
		return "", errors.New("gcs client not initialized")
	}
	if bucket == "" {
		bucket = c.defaultBucket
	}
	if bucket == "" {
		return "", errors.New("bucket is required")
	}
	object = strings.TrimPrefix(strings.TrimSpace(object), "/")
	if object == "" {
		return "", errors.New("object is required")
	}
	if expires <= 0 || expires > maxSignedURLExpiry {
		return "", fmt.Errorf("expiry must be within (0, %s]", maxSignedURLExpiry)
	}

	opts := &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expires),
		Scheme:  storage.SigningSchemeV4,
	}
	if fileName != "" {
		opts.QueryParameters = url.Values{
			"response-content-disposition": {fmt.Sprintf("attachment; filename=%q", fileName)},
		}
	}

	if c.serviceAccount != nil {
		opts.GoogleAccessID = c.serviceAccount.clientEmail
		opts.PrivateKey = c.serviceAccount.privateKey
		return storage.SignedURL(bucket, object, opts)
	}
	if c.storage == nil {
		return "", errors.New("no signing credentials configured")
	}
	return c.storage.Bucket(bucket).SignedURL(object, opts)
}

// Ping checks that the default bucket is reachable with the loaded identity.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.storage == nil {
		return errors.New("gcs client not initialized")
	}
	if c.defaultBucket == "" {
		return errors.New("gcs bucket not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := c.storage.Bucket(c.defaultBucket).Attrs(ctx); err != nil {
		return fmt.Errorf("reading bucket attrs: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.storage == nil {
		return nil
	}
	return c.storage.Close()
}
