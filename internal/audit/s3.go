package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const recordedAtMetaKey = "recorded_at"

// S3Recorder archives one JSON object per event in a bucket.
type S3Recorder struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

func NewS3Recorder(bucket, prefix string, client manager.UploadAPIClient) *S3Recorder {
	return &S3Recorder{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}
}

func (r *S3Recorder) Record(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.ObjectKey(ev)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			recordedAtMetaKey: strconv.FormatInt(ev.At.Unix(), 10),
		},
	}
	if _, err := r.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload audit event: %w", err)
	}
	return nil
}

// ObjectKey returns the object key for an event, e.g. audit/2026/10/16/1792...-imoveis-create.json
func (r *S3Recorder) ObjectKey(ev Event) string {
	at := ev.At.UTC()
	name := fmt.Sprintf("%d-%s-%s.json", at.UnixNano(), ev.Key, ev.Operation)
	return path.Join(r.prefix, at.Format("2006/01/02"), name)
}
