package imagesync

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	failIDs map[string]bool
}

func (f *fakeSource) ListImages(context.Context, time.Time) ([]SourceImage, error) {
	return nil, nil
}

func (f *fakeSource) Download(_ context.Context, id string) (io.ReadCloser, error) {
	if f.failIDs[id] {
		return nil, errors.New("drive: 404")
	}
	return io.NopCloser(strings.NewReader("img-" + id)), nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	calls   []string
	failPut map[string]bool
	failDel map[string]bool
}

func (f *fakeBlobs) List(context.Context, string) ([]MirrorObject, error) { return nil, nil }

func (f *fakeBlobs) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = io.ReadAll(body)
	f.calls = append(f.calls, "put "+CleanPath(key)+" "+contentType)
	if f.failPut[CleanPath(key)] {
		return "", errors.New("s3: slow down")
	}
	return "https://cdn.example/" + key, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete "+key)
	if f.failDel[key] {
		return errors.New("s3: denied")
	}
	return nil
}

func TestExecutor_OrderAndErrors(t *testing.T) {
	source := []SourceImage{
		src("a", "1-Hero.jpg", time.Hour),
		src("c", "2-Neuer-Titel.png", time.Hour),
		src("d", "3-Neu.webp", time.Hour),
		src("e", "5-Kaputt.jpg", time.Hour),
	}
	mirror := mirrorOf(
		"1-Hero-"+h+".jpg",
		"2-Alter-Titel-"+h+".png",
		"4-Weg-"+h+".jpg",
		"6-Auch-Weg-"+h+".jpg",
		"7-a-"+h+".jpg", "8-a-"+h+".jpg", "9-a-"+h+".jpg", "10-a-"+h+".jpg",
		"11-a-"+h+".jpg", "12-a-"+h+".jpg", "13-a-"+h+".jpg", "14-a-"+h+".jpg",
		"15-a-"+h+".jpg", "16-a-"+h+".jpg", "17-a-"+h+".jpg", "18-a-"+h+".jpg",
		"19-a-"+h+".jpg", "20-a-"+h+".jpg", "21-a-"+h+".jpg", "22-a-"+h+".jpg",
	)
	// keep the delete set to 4-Weg and 6-Auch-Weg
	for i := 7; i <= 22; i++ {
		source = append(source, src("k", strconv.Itoa(i)+"-a.jpg", 72*time.Hour))
	}
	plan, err := BuildPlan(source, mirror, Policy{MaxDeleteFraction: 0.10})
	require.NoError(t, err)
	require.Len(t, plan.Deletes, 2)

	blobs := &fakeBlobs{failDel: map[string]bool{"images/6-Auch-Weg-" + h + ".jpg": true}}
	written := time.Date(2025, 10, 4, 3, 0, 0, 0, time.UTC)
	ex := NewExecutor(&fakeSource{failIDs: map[string]bool{"e": true}}, blobs,
		WithClock(func() time.Time { return written }))
	ex.hash = func() string { return "zzzzzzzzzzzzzzzzzzzzzzzzzz" }

	applied, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"delete images/4-Weg-" + h + ".jpg",
		"delete images/6-Auch-Weg-" + h + ".jpg",
		"put 3-Neu image/webp",
		"put 2-Neuer-Titel image/png",
		"delete images/2-Alter-Titel-" + h + ".png",
	}, blobs.calls)

	assert.Equal(t, []string{"images/4-Weg-" + h + ".jpg"}, applied.Deleted)
	require.Len(t, applied.Uploaded, 1)
	assert.Equal(t, "images/3-Neu-zzzzzzzzzzzzzzzzzzzzzzzzzz.webp", applied.Uploaded[0].Key)
	assert.Equal(t, written, applied.Uploaded[0].UploadedAt)
	require.Len(t, applied.Updated, 1)
	assert.Equal(t, written, applied.Updated[0].UploadedAt)
	assert.Equal(t, []string{"images/2-Alter-Titel-" + h + ".png"}, applied.Replaced)
	assert.Equal(t, 2, applied.Removed())
	require.Len(t, applied.Errors, 2)
	assert.Equal(t, "delete", applied.Errors[0].Op)
	assert.Equal(t, "upload", applied.Errors[1].Op)
	assert.Equal(t, "5-Kaputt.jpg", applied.Errors[1].Key)
}

func TestExecutor_RefusesPlanOverCap(t *testing.T) {
	plan := &Plan{
		Deletes:    []MirrorObject{blob("1-a-" + h + ".jpg"), blob("2-b-" + h + ".jpg")},
		MirrorSize: 10,
		DeleteCap:  1,
	}
	blobs := &fakeBlobs{}
	_, err := NewExecutor(&fakeSource{}, blobs).Execute(context.Background(), plan)
	assert.ErrorIs(t, err, ErrDeletionCapExceeded)
	assert.Empty(t, blobs.calls, "nothing is touched when the cap is exceeded")
}

func TestExecutor_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plan := &Plan{Uploads: []SourceImage{src("a", "1-Hero.jpg", 0)}}
	blobs := &fakeBlobs{}
	_, err := NewExecutor(&fakeSource{}, blobs).Execute(ctx, plan)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, blobs.calls)
}
