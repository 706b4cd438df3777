// Package s3 loads metadata records from Amazon S3. Locations are
// s3://bucket/key URIs.
package s3

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	solrbulk "github.com/metsis/solrbulk"
)

// Loader fetches records from S3 using the default credential chain.
type Loader struct {
	s3 *s3.S3
}

var _ solrbulk.RecordLoader = (*Loader)(nil)

// NewLoader creates a loader. An empty region falls back to the
// AWS_REGION environment variable.
func NewLoader(region string) (*Loader, error) {
	cfg := aws.Config{}
	if region != "" {
		cfg.Region = aws.String(region)
	}
	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating aws session")
	}
	return &Loader{s3: s3.New(sess)}, nil
}

// Load fetches one object.
func (l *Loader) Load(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := SplitURI(location)
	if err != nil {
		return nil, err
	}
	out, err := l.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", location)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	return data, errors.Wrapf(err, "reading %s", location)
}

// List returns a location for every object under the prefix, sorted so
// chunk boundaries are stable between runs.
func (l *Loader) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var locations []string
	err := l.s3.ListObjectsPagesWithContext(ctx, &s3.ListObjectsInput{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsOutput, last bool) bool {
		for _, obj := range page.Contents {
			locations = append(locations, "s3://"+bucket+"/"+*obj.Key)
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing s3://%s/%s", bucket, prefix)
	}
	sort.Strings(locations)
	return locations, nil
}

// SplitURI splits an s3://bucket/key location into bucket and key.
func SplitURI(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", errors.Errorf("not an s3 location: %q", location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.Errorf("malformed s3 location: %q", location)
	}
	return bucket, key, nil
}
