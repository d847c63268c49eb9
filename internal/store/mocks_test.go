package store

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type recordingUploader struct {
	mu      sync.Mutex
	uploads map[string]UploadParams
	err     error
}

func (u *recordingUploader) Upload(_ context.Context, params UploadParams) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.uploads == nil {
		u.uploads = map[string]UploadParams{}
	}
	u.uploads[params.Name] = params
	return u.err
}

func (u *recordingUploader) names() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	names := make([]string, 0, len(u.uploads))
	for n := range u.uploads {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type recordingInvalidator struct {
	paths [][]string
}

func (i *recordingInvalidator) Invalidate(_ context.Context, paths []string) error {
	i.paths = append(i.paths, paths)
	return nil
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{ETag: aws.String("etag")}, nil
}

type fakeCloudFront struct {
	input *cloudfront.CreateInvalidationInput
}

func (f *fakeCloudFront) CreateInvalidation(_ context.Context, in *cloudfront.CreateInvalidationInput, _ ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error) {
	f.input = in
	return &cloudfront.CreateInvalidationOutput{}, nil
}
