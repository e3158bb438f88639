package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want Locator
	}{
		{"s3", "s3://syllabi/uploads/a/cs101.pdf", Locator{Scheme: SchemeS3, Bucket: "syllabi", Key: "uploads/a/cs101.pdf"}},
		{"s3 padded", "  s3://b/k.pdf ", Locator{Scheme: SchemeS3, Bucket: "b", Key: "k.pdf"}},
		{"file", "file:///tmp/cs101.pdf", Locator{Scheme: SchemeFile, Path: "/tmp/cs101.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, uri := range []string{"", "bucket/key", "s3://", "s3://bucket", "s3://bucket/", "s3:///key", "file://", "http://x/y"} {
		_, err := Parse(uri)
		assert.ErrorIs(t, err, ErrInvalid, uri)
	}
}

func TestRoundTrip(t *testing.T) {
	l, err := Parse(S3("b", "dir/f.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "s3://b/dir/f.pdf", l.String())
}

func TestFileRoundTrip(t *testing.T) {
	l, err := Parse(File("/srv/uploads/cs101.pdf"))
	require.NoError(t, err)
	assert.Equal(t, SchemeFile, l.Scheme)
	assert.Equal(t, "/srv/uploads/cs101.pdf", l.Path)
	assert.Equal(t, "file:///srv/uploads/cs101.pdf", l.String())
}
