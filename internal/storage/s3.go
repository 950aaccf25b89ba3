// Package storage archives raw feed payloads to S3-compatible object storage.
package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/Saul-Punybz/newsdesk/internal/config"
)

// objectAPI is the subset of the S3 client the archive uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Archive stores one gzip object plus a JSON manifest per fetched payload.
type Archive struct {
	s3     objectAPI
	bucket string
}

// PayloadMeta describes an archived payload.
type PayloadMeta struct {
	SourceID  uuid.UUID `json:"source_id"`
	FetchedAt time.Time `json:"fetched_at"`
	Size      int       `json:"size"`
	SHA256    string    `json:"sha256"`
}

// NewArchive creates an archive client. With no endpoint configured it
// returns a disabled archive whose writes are no-ops.
func NewArchive(ctx context.Context, cfg config.S3Config) (*Archive, error) {
	if !cfg.Enabled() {
		slog.Warn("S3 endpoint not configured, payload archive disabled")
		return &Archive{bucket: cfg.Bucket}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return &Archive{s3: client, bucket: cfg.Bucket}, nil
}

// Configured reports whether uploads go anywhere.
func (a *Archive) Configured() bool {
	return a != nil && a.s3 != nil
}

// PayloadKey is the object key prefix for one fetch.
func PayloadKey(sourceID uuid.UUID, fetchedAt time.Time) string {
	t := fetchedAt.UTC()
	return fmt.Sprintf("feeds/%s/%s/%s", sourceID, t.Format("2006/01/02"), t.Format("150405.000000000"))
}

// StoreFeedPayload uploads body gzip-compressed along with its manifest and
// returns the key prefix.
func (a *Archive) StoreFeedPayload(ctx context.Context, sourceID uuid.UUID, fetchedAt time.Time, body []byte) (string, error) {
	if !a.Configured() {
		return "", nil
	}

	prefix := PayloadKey(sourceID, fetchedAt)
	meta, err := json.MarshalIndent(PayloadMeta{
		SourceID:  sourceID,
		FetchedAt: fetchedAt.UTC(),
		Size:      len(body),
		SHA256:    sha256sum(body),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("storage: marshal meta: %w", err)
	}

	compressed, err := gzipCompress(body)
	if err != nil {
		return "", fmt.Errorf("storage: compress payload: %w", err)
	}

	if err := a.put(ctx, prefix+"/payload.gz", compressed, "application/gzip"); err != nil {
		return "", err
	}
	if err := a.put(ctx, prefix+"/meta.json", meta, "application/json"); err != nil {
		return "", err
	}

	slog.Debug("feed payload archived", "key", prefix, "size", len(body), "stored", len(compressed))
	return prefix, nil
}

// FetchFeedPayload reads back an archived payload and verifies its digest.
func (a *Archive) FetchFeedPayload(ctx context.Context, prefix string) ([]byte, *PayloadMeta, error) {
	if !a.Configured() {
		return nil, nil, fmt.Errorf("storage: not configured")
	}

	metaData, err := a.get(ctx, prefix+"/meta.json")
	if err != nil {
		return nil, nil, err
	}
	var meta PayloadMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, nil, fmt.Errorf("storage: unmarshal meta: %w", err)
	}

	raw, err := a.get(ctx, prefix+"/payload.gz")
	if err != nil {
		return nil, nil, err
	}
	body, err := gzipDecompress(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: decompress payload: %w", err)
	}
	if sha256sum(body) != meta.SHA256 {
		return nil, nil, fmt.Errorf("storage: digest mismatch for %s", prefix)
	}
	return body, &meta, nil
}

func (a *Archive) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("storage: upload %s: %w", key, err)
	}
	return nil
}

func (a *Archive) get(ctx context.Context, key string) ([]byte, error) {
	out, err := a.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
