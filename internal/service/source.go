package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"fondos/internal/domain"
	"fondos/internal/workbook"
)

const s3Scheme = "s3://"

// ParseS3URI splits an s3://bucket/key URI.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", domain.ErrInvalidS3URI, uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", domain.ErrInvalidS3URI, uri)
	}
	return bucket, key, nil
}

// IsS3URI reports whether source names an object rather than a local file.
func IsS3URI(source string) bool {
	return strings.HasPrefix(source, s3Scheme)
}

func (s *importService) loadWorkbook(ctx context.Context, source string) (*workbook.Workbook, error) {
	if !IsS3URI(source) {
		return workbook.Open(source)
	}

	bucket, key, err := ParseS3URI(source)
	if err != nil {
		return nil, err
	}
	if s.storage == nil {
		return nil, errors.New("object storage is not configured for s3 sources")
	}
	data, err := s.storage.Download(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInputNotFound, source, err)
	}
	return workbook.Read(bytes.NewReader(data))
}
