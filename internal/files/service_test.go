package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const week = 7 * 24 * time.Hour

func newTestService(t *testing.T) (*Service, *memStorage, *memRepo) {
	t.Helper()
	storage := newMemStorage()
	repo := newMemRepo()
	return NewService(storage, repo, nil, week), storage, repo
}

func TestUpload(t *testing.T) {
	svc, storage, repo := newTestService(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	svc.now = func() time.Time { return fixed }

	file, err := svc.Upload(context.Background(), &UploadRequest{
		Name:    "report.final.pdf",
		Content: strings.NewReader("0123456789"),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, file.ID)
	assert.Equal(t, "report.final.pdf", file.OriginalName)
	assert.Equal(t, int64(10), file.Size)
	assert.Equal(t, fixed.Truncate(time.Millisecond), file.CreatedAt)

	assert.True(t, strings.HasPrefix(file.StoredName, fmt.Sprintf("%d-", fixed.UnixMilli())))
	assert.True(t, strings.HasSuffix(file.StoredName, ".pdf"))
	assert.NotContains(t, file.StoredName, file.ID)

	assert.True(t, storage.has(file.StoredName))
	stored, err := repo.FindByID(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, file, stored)
}

func TestUploadMissingInput(t *testing.T) {
	svc, storage, repo := newTestService(t)

	_, err := svc.Upload(context.Background(), &UploadRequest{Name: "a.txt"})
	assert.ErrorIs(t, err, ErrMissingInput)

	_, err = svc.Upload(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingInput)

	assert.Zero(t, storage.len())
	assert.Zero(t, repo.len())
}

func TestUploadRemovesBlobWhenMetadataFails(t *testing.T) {
	svc, storage, repo := newTestService(t)
	repo.createErr = errors.New("database is locked")

	_, err := svc.Upload(context.Background(), &UploadRequest{
		Name:    "a.txt",
		Content: strings.NewReader("content"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.createErr)
	assert.NotErrorIs(t, err, ErrMissingInput)

	assert.Zero(t, storage.len(), "blob must not outlive a failed metadata save")
	assert.Zero(t, repo.len())
}

func TestUploadStorageFailure(t *testing.T) {
	svc, storage, repo := newTestService(t)
	storage.saveErr = errors.New("disk full")

	_, err := svc.Upload(context.Background(), &UploadRequest{
		Name:    "a.txt",
		Content: strings.NewReader("content"),
	})
	assert.ErrorIs(t, err, storage.saveErr)
	assert.Zero(t, repo.len())
}

func TestUploadPublishesEvent(t *testing.T) {
	storage := newMemStorage()
	repo := newMemRepo()
	notifier := &recordingNotifier{err: errors.New("nats down")}
	svc := NewService(storage, repo, notifier, week)

	// A failing notifier must not fail the upload.
	file, err := svc.Upload(context.Background(), &UploadRequest{
		Name:    "a.txt",
		Content: strings.NewReader("content"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{SubjectUploaded}, notifier.subjects())
	assert.Equal(t, file.ID, notifier.events[0].file.ID)
}

func TestDownloadRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	payload := "hello, world\x00\xff binary"

	uploaded, err := svc.Upload(context.Background(), &UploadRequest{
		Name:    "greeting.bin",
		Content: strings.NewReader(payload),
	})
	require.NoError(t, err)

	file, content, err := svc.Download(context.Background(), uploaded.ID)
	require.NoError(t, err)
	defer content.Close()

	data, err := io.ReadAll(content)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
	assert.Equal(t, "greeting.bin", file.OriginalName)
}

func TestDownloadUnknownID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.Download(context.Background(), "does-not-exist-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDownloadExpired(t *testing.T) {
	svc, _, _ := newTestService(t)
	start := time.Now()
	svc.now = func() time.Time { return start }

	uploaded, err := svc.Upload(context.Background(), &UploadRequest{
		Name:    "a.txt",
		Content: strings.NewReader("content"),
	})
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(week - time.Minute) }
	_, content, err := svc.Download(context.Background(), uploaded.ID)
	require.NoError(t, err)
	content.Close()

	svc.now = func() time.Time { return start.Add(week + time.Second) }
	_, _, err = svc.Download(context.Background(), uploaded.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDownloadMissingBlob(t *testing.T) {
	svc, storage, _ := newTestService(t)

	uploaded, err := svc.Upload(context.Background(), &UploadRequest{
		Name:    "a.txt",
		Content: strings.NewReader("content"),
	})
	require.NoError(t, err)
	require.NoError(t, storage.Delete(uploaded.StoredName))

	_, _, err = svc.Download(context.Background(), uploaded.ID)
	assert.ErrorIs(t, err, ErrStorageInconsistency)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestConcurrentUploadsAreUnique(t *testing.T) {
	svc, storage, repo := newTestService(t)
	fixed := time.Now()
	// Same millisecond for every upload: uniqueness must not rely on the clock.
	svc.now = func() time.Time { return fixed }

	const n = 50
	var wg sync.WaitGroup
	results := make([]*FileRecord, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Upload(context.Background(), &UploadRequest{
				Name:    "same-name.txt",
				Content: strings.NewReader(fmt.Sprintf("file %d", i)),
			})
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool)
	storedNames := make(map[string]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		ids[results[i].ID] = true
		storedNames[results[i].StoredName] = true
	}
	assert.Len(t, ids, n)
	assert.Len(t, storedNames, n)
	assert.Equal(t, n, storage.len())
	assert.Equal(t, n, repo.len())
}

func TestExtension(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"photo.jpg", ".jpg"},
		{"archive.tar.gz", ".gz"},
		{"README", ""},
		{".bashrc", ""},
		{"trailing.", ""},
		{`C:\Users\me\notes.TXT`, ".TXT"},
		{"dir/sub/file.md", ".md"},
		{"evil.p/hp", ""},
		{"weird.ex e", ""},
		{"long." + strings.Repeat("x", 40), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extension(tt.name))
		})
	}
}
