/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3Config configures access to private media buckets.
type S3Config struct {
	Region          string
	Bucket          string // default bucket for "s3:///key" references
	Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignTTL      time.Duration
}

// S3Signer turns s3://bucket/key references into time-limited HTTPS URLs.
type S3Signer struct {
	presign       func(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	defaultBucket string
	ttl           time.Duration
	logger        zerolog.Logger

	mu    sync.Mutex
	cache map[string]signedURL
	now   func() time.Time
}

type signedURL struct {
	url     string
	expires time.Time
}

// NewS3Signer builds a signer from static credentials or the default AWS chain.
func NewS3Signer(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Signer, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	presigner := s3.NewPresignClient(client)

	signer := newS3Signer(func(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
		req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", err
		}
		return req.URL, nil
	}, cfg.Bucket, cfg.PresignTTL, logger)

	logger.Info().
		Str("region", cfg.Region).
		Str("endpoint", cfg.Endpoint).
		Dur("presign_ttl", signer.ttl).
		Msg("S3 media signer initialized")
	return signer, nil
}

func newS3Signer(presign func(context.Context, string, string, time.Duration) (string, error), bucket string, ttl time.Duration, logger zerolog.Logger) *S3Signer {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &S3Signer{
		presign:       presign,
		defaultBucket: bucket,
		ttl:           ttl,
		logger:        logger.With().Str("component", "s3-signer").Logger(),
		cache:         make(map[string]signedURL),
		now:           time.Now,
	}
}

// ParseS3Ref splits s3://bucket/key. An empty bucket ("s3:///key") is allowed.
func ParseS3Ref(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 reference: %q", ref)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 reference %q has no object key", ref)
	}
	return bucket, key, nil
}

// Sign returns a presigned GET URL. URLs are reused for half their lifetime
// so a screen reloading the same item gets the same URL.
func (s *S3Signer) Sign(ctx context.Context, ref string) (string, error) {
	bucket, key, err := ParseS3Ref(ref)
	if err != nil {
		return "", err
	}
	if bucket == "" {
		bucket = s.defaultBucket
	}
	if bucket == "" {
		return "", fmt.Errorf("s3 reference %q has no bucket and no default bucket is configured", ref)
	}

	now := s.now()
	s.mu.Lock()
	if cached, ok := s.cache[ref]; ok && now.Before(cached.expires) {
		s.mu.Unlock()
		return cached.url, nil
	}
	s.mu.Unlock()

	url, err := s.presign(ctx, bucket, key, s.ttl)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", ref, err)
	}

	s.mu.Lock()
	s.cache[ref] = signedURL{url: url, expires: now.Add(s.ttl / 2)}
	s.mu.Unlock()

	s.logger.Debug().Str("bucket", bucket).Str("key", key).Msg("presigned media url")
	return url, nil
}
