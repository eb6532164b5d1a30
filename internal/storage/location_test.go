package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Location
	}{
		{
			name: "s3a with prefix",
			raw:  "s3a://udacity-dend/output",
			want: Location{Kind: KindS3, Bucket: "udacity-dend", Prefix: "output/", Raw: "s3a://udacity-dend/output"},
		},
		{
			name: "s3 bucket root",
			raw:  "s3://my-lake/",
			want: Location{Kind: KindS3, Bucket: "my-lake", Prefix: "", Raw: "s3://my-lake/"},
		},
		{
			name: "file url",
			raw:  "file:///data/lake",
			want: Location{Kind: KindLocal, Path: filepath.Clean("/data/lake"), Raw: "file:///data/lake"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseLocation(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseLocation_PlainPathIsAbsolute(t *testing.T) {
	got, err := ParseLocation("data/output")
	require.NoError(t, err)
	assert.Equal(t, KindLocal, got.Kind)
	assert.True(t, filepath.IsAbs(got.Path))
	assert.Equal(t, "output", filepath.Base(got.Path))
}

func TestParseLocation_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "s3:///no-bucket", "gs://bucket/x", "file://"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseLocation(raw)
			assert.ErrorIs(t, err, ErrInvalidLocation)
		})
	}
}

func TestLocationString(t *testing.T) {
	loc, err := ParseLocation("s3n://bucket/a/b")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/a/b/", loc.String())
}
