// Package archive keeps an optional copy of every document sent to the
// receiver in object storage.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Sink kinds.
const (
	KindNone = "none"
	KindS3   = "s3"
	KindGCS  = "gcs"
)

// Object is one archived document.
type Object struct {
	Key         string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Sink stores archived objects.
type Sink interface {
	Put(ctx context.Context, obj Object) error
	Close() error
}

// Options selects and configures a Sink.
type Options struct {
	Kind   string
	Bucket string
	Prefix string

	// S3 and S3-compatible stores.
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool

	// GCS. Empty uses application default credentials.
	CredentialsFile string
}

// Open returns the configured sink. An empty kind disables archiving.
func Open(ctx context.Context, opts Options) (Sink, error) {
	switch strings.ToLower(opts.Kind) {
	case "", KindNone:
		return NopSink{}, nil
	case KindS3:
		return NewS3Sink(ctx, opts)
	case KindGCS:
		return NewGCSSink(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown archive kind %q", opts.Kind)
	}
}

// ObjectKey is prefix/jobID/fileID.pdf.
func ObjectKey(prefix, jobID, fileID string) string {
	return path.Join(prefix, jobID, fileID+".pdf")
}

// NopSink discards objects.
type NopSink struct{}

func (NopSink) Put(context.Context, Object) error { return nil }
func (NopSink) Close() error                      { return nil }
