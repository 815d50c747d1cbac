package mirror_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dhgen/internal/config"
	"dhgen/internal/mirror"
	"dhgen/internal/services"
	"dhgen/internal/testsupport"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failKey string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.failKey {
		return nil, errors.New("access denied")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
		f.types = make(map[string]string)
	}
	f.objects[aws.ToString(in.Bucket)+"/"+key] = data
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestPublishUploadsUnderJobPrefix(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "talk.mp4")
	audio := filepath.Join(dir, "speech.wav")
	frame := filepath.Join(dir, "frame.png")
	testsupport.WriteText(t, video, "video")
	testsupport.WriteText(t, audio, "audio")
	testsupport.WriteText(t, frame, "png")

	api := &fakeS3{}
	m := mirror.NewWithAPI(api, "bucket", "/dhgen/", nil)
	objects, err := m.Publish(context.Background(), "job-1", []string{video, audio, frame})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(objects) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(objects))
	}
	if objects[0].URI != "s3://bucket/dhgen/job-1/talk.mp4" {
		t.Fatalf("unexpected uri %q", objects[0].URI)
	}
	if string(api.objects["bucket/dhgen/job-1/speech.wav"]) != "audio" {
		t.Fatalf("audio object missing: %v", api.objects)
	}
	if api.types["dhgen/job-1/frame.png"] != "image/png" {
		t.Fatalf("unexpected content type %q", api.types["dhgen/job-1/frame.png"])
	}
}

func TestPublishContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	testsupport.WriteText(t, a, "a")
	testsupport.WriteText(t, b, "b")

	api := &fakeS3{failKey: "job-1/a.png"}
	m := mirror.NewWithAPI(api, "bucket", "", nil)
	objects, err := m.Publish(context.Background(), "job-1", []string{a, filepath.Join(dir, "missing.png"), b})
	if !errors.Is(err, services.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	if len(objects) != 1 || objects[0].Key != "job-1/b.png" {
		t.Fatalf("expected only b.png mirrored, got %+v", objects)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := mirror.New(context.Background(), config.Mirror{Enabled: true}, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
