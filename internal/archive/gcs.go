package archive

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSSink writes to a Cloud Storage bucket.
type GCSSink struct {
	client *storage.Client
	bucket string
}

func NewGCSSink(ctx context.Context, opts Options) (*GCSSink, error) {
	if opts.Bucket == "" {
		return nil, errors.New("archive: missing gcs bucket")
	}
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: gcs client: %w", err)
	}
	return &GCSSink{client: client, bucket: opts.Bucket}, nil
}

// Put uploads obj and lets the server verify its CRC32C.
func (s *GCSSink) Put(ctx context.Context, obj Object) error {
	w := s.client.Bucket(s.bucket).Object(obj.Key).NewWriter(ctx)
	w.ChunkSize = 0
	w.ContentType = obj.ContentType
	w.Metadata = obj.Metadata
	w.CRC32C = crc32.Checksum(obj.Data, crc32.MakeTable(crc32.Castagnoli))
	w.SendCRC32C = true

	if _, err := w.Write(obj.Data); err != nil {
		_ = w.Close()
		return fmt.Errorf("archive: write gs://%s/%s: %w", s.bucket, obj.Key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archive: close gs://%s/%s: %w", s.bucket, obj.Key, err)
	}
	return nil
}

func (s *GCSSink) Close() error { return s.client.Close() }
