package imagesync

import (
	"context"
	"fmt"
	"time"
)

// Executor applies a validated plan against blob storage.
type Executor struct {
	source Source
	blobs  BlobStore
	hash   func() string
	now    func() time.Time
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithClock sets the clock stamped on written blobs.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor returns an executor that downloads from source and writes to blobs.
func NewExecutor(source Source, blobs BlobStore, opts ...ExecutorOption) *Executor {
	e := &Executor{source: source, blobs: blobs, hash: NewContentHash, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Applied lists what an execution actually did.
type Applied struct {
	Uploaded []MirrorObject
	Updated  []MirrorObject
	Deleted  []string
	// Replaced are the old keys removed after their update was written.
	Replaced []string
	Errors   []OpError
}

// Removed counts every blob the execution deleted.
func (a *Applied) Removed() int {
	return len(a.Deleted) + len(a.Replaced)
}

// Execute runs deletes, then uploads, then updates. A failing item is recorded
// and the remaining items still run. Execute refuses plans that fail Validate.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*Applied, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	out := &Applied{}

	for _, obj := range plan.Deletes {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if err := e.blobs.Delete(ctx, obj.Key); err != nil {
			out.Errors = append(out.Errors, OpError{Op: "delete", Key: obj.Key, Error: err.Error()})
			continue
		}
		out.Deleted = append(out.Deleted, obj.Key)
	}

	for _, img := range plan.Uploads {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		obj, err := e.upload(ctx, img)
		if err != nil {
			out.Errors = append(out.Errors, OpError{Op: "upload", Key: img.Name, Error: err.Error()})
			continue
		}
		out.Uploaded = append(out.Uploaded, obj)
	}

	for _, up := range plan.Updates {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		obj, err := e.upload(ctx, up.Source)
		if err != nil {
			out.Errors = append(out.Errors, OpError{Op: "update", Key: up.Mirror.Key, Error: err.Error()})
			continue
		}
		// the new copy exists; a failed cleanup only leaves a stale duplicate behind
		if err := e.blobs.Delete(ctx, up.Mirror.Key); err != nil {
			out.Errors = append(out.Errors, OpError{Op: "update-delete", Key: up.Mirror.Key, Error: err.Error()})
		} else {
			out.Replaced = append(out.Replaced, up.Mirror.Key)
		}
		out.Updated = append(out.Updated, obj)
	}
	return out, nil
}

func (e *Executor) upload(ctx context.Context, img SourceImage) (MirrorObject, error) {
	body, err := e.source.Download(ctx, img.ID)
	if err != nil {
		return MirrorObject{}, fmt.Errorf("download %s: %w", img.ID, err)
	}
	defer body.Close()

	key := BlobKey(img.Parsed, e.hash())
	url, err := e.blobs.Put(ctx, key, body, img.Size, ContentType(img.Parsed.Extension))
	if err != nil {
		return MirrorObject{}, fmt.Errorf("put %s: %w", key, err)
	}
	return MirrorObject{Key: key, URL: url, Size: img.Size, UploadedAt: e.now(), Parsed: img.Parsed}, nil
}
