// Package locator parses storage URIs of the form s3://bucket/key and
// file:///abs/path.
package locator

import (
	"errors"
	"fmt"
	"strings"
)

const (
	SchemeS3   = "s3"
	SchemeFile = "file"
)

var ErrInvalid = errors.New("invalid storage locator")

type Locator struct {
	Scheme string
	Bucket string
	Key    string
	Path   string
}

func Parse(uri string) (Locator, error) {
	uri = strings.TrimSpace(uri)
	switch {
	case strings.HasPrefix(uri, "s3://"):
		rest := strings.TrimPrefix(uri, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || strings.TrimLeft(key, "/") == "" {
			return Locator{}, fmt.Errorf("%w: %q", ErrInvalid, uri)
		}
		return Locator{Scheme: SchemeS3, Bucket: bucket, Key: key}, nil
	case strings.HasPrefix(uri, "file://"):
		path := strings.TrimPrefix(uri, "file://")
		if path == "" {
			return Locator{}, fmt.Errorf("%w: %q", ErrInvalid, uri)
		}
		return Locator{Scheme: SchemeFile, Path: path}, nil
	default:
		return Locator{}, fmt.Errorf("%w: %q", ErrInvalid, uri)
	}
}

func S3(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// File expects an absolute path.
func File(path string) string {
	return "file://" + path
}

func (l Locator) String() string {
	if l.Scheme == SchemeFile {
		return File(l.Path)
	}
	return S3(l.Bucket, l.Key)
}
