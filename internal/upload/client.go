// internal/upload/client.go
package upload

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used for uploads and listings.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
}

// Client moves source media into the input bucket and enumerates it.
type Client struct {
	api      S3API
	uploader *manager.Uploader
}

// NewClient wraps an S3 API implementation.
func NewClient(api S3API) *Client {
	return &Client{
		api: api,
		uploader: manager.NewUploader(api, func(u *manager.Uploader) {
			u.PartSize = 16 * 1024 * 1024
		}),
	}
}

// UploadOptions customises object persistence.
type UploadOptions struct {
	// Key defaults to Prefix + the file's base name.
	Key      string
	Prefix   string
	MimeType string
}

// UploadResult captures information about a stored object.
type UploadResult struct {
	Bucket   string
	Key      string
	Location string
	MimeType string
	Size     int64
}

// Object is one listed source object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// UploadFile stores the file at localPath in bucket. Large files are sent as
// multipart uploads.
func (c *Client) UploadFile(ctx context.Context, bucket, localPath string, opts UploadOptions) (*UploadResult, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}

	key := opts.Key
	if key == "" {
		key = path.Join(opts.Prefix, filepath.Base(localPath))
	}

	mimeType := opts.MimeType
	if mimeType == "" {
		mt, err := detectMime(localPath)
		if err != nil {
			return nil, err
		}
		mimeType = mt
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer file.Close()

	out, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return nil, fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}

	return &UploadResult{
		Bucket:   bucket,
		Key:      key,
		Location: out.Location,
		MimeType: mimeType,
		Size:     info.Size(),
	}, nil
}

// ListObjects returns objects under prefix in key order. A positive limit
// stops the listing early.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]Object, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	paginator := s3.NewListObjectsV2Paginator(c.api, input)

	var objects []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, item := range page.Contents {
			key := aws.ToString(item.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, Object{
				Key:          key,
				Size:         aws.ToInt64(item.Size),
				LastModified: aws.ToTime(item.LastModified),
			})
			if limit > 0 && len(objects) >= limit {
				return objects, nil
			}
		}
	}
	return objects, nil
}

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mpg":  "video/mpeg",
	".mpeg": "video/mpeg",
	".ts":   "video/mp2t",
	".mxf":  "application/mxf",
}

func detectMime(localPath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(localPath))
	if known, ok := videoTypes[ext]; ok {
		return known, nil
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt, nil
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open for mime detect: %w", err)
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read for mime detect: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}
