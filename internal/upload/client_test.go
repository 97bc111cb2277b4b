package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	putErr error
	got    struct {
		bucket      string
		key         string
		contentType string
		body        []byte
	}
	pages [][]types.Object
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.got.bucket = aws.ToString(in.Bucket)
	f.got.key = aws.ToString(in.Key)
	f.got.contentType = aws.ToString(in.ContentType)
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.got.body = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := 0
	if in.ContinuationToken != nil {
		page = int(aws.ToString(in.ContinuationToken)[0] - '0')
	}
	out := &s3.ListObjectsV2Output{Contents: f.pages[page]}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(string(rune('0' + page + 1)))
	}
	return out, nil
}

func TestUploadFileSuccess(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "movie.mp4")
	if err := os.WriteFile(file, []byte("data"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	fake := &fakeS3{}
	client := NewClient(fake)

	result, err := client.UploadFile(context.Background(), "uploads", file, UploadOptions{Prefix: "public"})
	if err != nil {
		t.Fatalf("UploadFile returned error: %v", err)
	}
	if fake.got.bucket != "uploads" || fake.got.key != "public/movie.mp4" {
		t.Fatalf("unexpected destination s3://%s/%s", fake.got.bucket, fake.got.key)
	}
	if fake.got.contentType != "video/mp4" {
		t.Fatalf("expected video/mp4, got %s", fake.got.contentType)
	}
	if string(fake.got.body) != "data" {
		t.Fatalf("unexpected body %q", fake.got.body)
	}
	if result.Size != 4 || result.Key != "public/movie.mp4" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestUploadFilePropagatesErrors(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "movie.mp4")
	if err := os.WriteFile(file, []byte("data"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	expected := errors.New("upload failed")
	client := NewClient(&fakeS3{putErr: expected})
	if _, err := client.UploadFile(context.Background(), "uploads", file, UploadOptions{}); !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
	if _, err := client.UploadFile(context.Background(), "uploads", filepath.Join(tmp, "missing.mp4"), UploadOptions{}); err == nil {
		t.Fatal("expected stat error for missing file")
	}
}

func TestListObjectsPagesAndLimits(t *testing.T) {
	fake := &fakeS3{pages: [][]types.Object{
		{{Key: aws.String("a.mp4"), Size: aws.Int64(1)}, {Key: aws.String("folder/")}},
		{{Key: aws.String("b.mov"), Size: aws.Int64(2)}, {Key: aws.String("c.mkv"), Size: aws.Int64(3)}},
	}}
	client := NewClient(fake)

	all, err := client.ListObjects(context.Background(), "uploads", "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Key != "a.mp4" || all[2].Key != "c.mkv" {
		t.Fatalf("unexpected objects %+v", all)
	}

	limited, err := client.ListObjects(context.Background(), "uploads", "", 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 || limited[1].Key != "b.mov" {
		t.Fatalf("unexpected limited objects %+v", limited)
	}
}

func TestDetectMimeFallsBackToContentSniffing(t *testing.T) {
	file := filepath.Join(t.TempDir(), "noext")
	if err := os.WriteFile(file, []byte("plain text body"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	mt, err := detectMime(file)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if mt != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected mime %q", mt)
	}
}
