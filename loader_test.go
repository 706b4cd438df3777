package solrbulk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemeLoaderRoutesByScheme(t *testing.T) {
	var gotPlain, gotS3 string
	sl := SchemeLoader{
		"": LoaderFunc(func(ctx context.Context, loc string) ([]byte, error) {
			gotPlain = loc
			return []byte("plain"), nil
		}),
		"s3": LoaderFunc(func(ctx context.Context, loc string) ([]byte, error) {
			gotS3 = loc
			return []byte("object"), nil
		}),
	}

	data, err := sl.Load(context.Background(), "/data/rec.xml")
	require.NoError(t, err)
	assert.Equal(t, "plain", string(data))
	assert.Equal(t, "/data/rec.xml", gotPlain)

	data, err = sl.Load(context.Background(), "s3://bucket/rec.xml")
	require.NoError(t, err)
	assert.Equal(t, "object", string(data))
	assert.Equal(t, "s3://bucket/rec.xml", gotS3)
}

func TestSchemeLoaderUnknownScheme(t *testing.T) {
	sl := SchemeLoader{
		"": LoaderFunc(func(ctx context.Context, loc string) ([]byte, error) {
			return nil, nil
		}),
	}

	_, err := sl.Load(context.Background(), "gopher://host/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no loader for location")
}
