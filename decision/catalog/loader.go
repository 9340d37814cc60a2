package catalog

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	lcerrors "landed-cost/pkg/errors"
	"landed-cost/pkg/platform"
)

// ObjectGetter is the subset of the S3 client used to fetch a registry.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader resolves a registry source string:
//
//	""                   embedded tables
//	/path/to/file.yaml   local file
//	https://host/x.yaml  HTTP(S) with retries
//	s3://bucket/key      S3 object via the default AWS credential chain
type Loader struct {
	httpClient *platform.HTTPClient
	s3Client   ObjectGetter
}

// NewLoader creates a loader with a retrying HTTP client.
func NewLoader() *Loader {
	return &Loader{
		httpClient: platform.NewHTTPClient(2, 15*time.Second),
	}
}

// WithHTTPClient overrides the HTTP client.
func (l *Loader) WithHTTPClient(c *platform.HTTPClient) *Loader {
	l.httpClient = c
	return l
}

// WithS3 sets the S3 client. Without one, Open builds a client from the
// default AWS config on first use.
func (l *Loader) WithS3(c ObjectGetter) *Loader {
	l.s3Client = c
	return l
}

// Open loads and validates the registry named by source.
func (l *Loader) Open(ctx context.Context, source string) (*Registry, error) {
	switch {
	case source == "":
		return Embedded()
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		data, err := l.httpClient.Get(ctx, source)
		if err != nil {
			return nil, unavailable(source, err)
		}
		return Parse(data)
	case strings.HasPrefix(source, "s3://"):
		return l.openS3(ctx, source)
	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, unavailable(source, err)
		}
		defer f.Close()
		return Load(f)
	}
}

func (l *Loader) openS3(ctx context.Context, source string) (*Registry, error) {
	u, err := url.Parse(source)
	if err != nil || u.Host == "" || strings.TrimPrefix(u.Path, "/") == "" {
		return nil, lcerrors.NewRegistryError(lcerrors.ErrCodeRegistryUnavailable,
			fmt.Sprintf("invalid S3 location %q, want s3://bucket/key", source), err)
	}

	client := l.s3Client
	if client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, unavailable(source, fmt.Errorf("load AWS config: %w", err))
		}
		client = s3.NewFromConfig(cfg)
		l.s3Client = client
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
	})
	if err != nil {
		return nil, unavailable(source, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, unavailable(source, err)
	}
	return Parse(buf.Bytes())
}

func unavailable(source string, err error) error {
	return lcerrors.NewRegistryError(lcerrors.ErrCodeRegistryUnavailable,
		fmt.Sprintf("load registry from %s", source), err)
}
