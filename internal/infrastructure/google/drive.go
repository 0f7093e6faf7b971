package google

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/nest-haus/backend/internal/domain/imagesync"
)

const (
	drivePageSize = 1000
	driveFields   = "nextPageToken, files(id, name, mimeType, modifiedTime, size)"
)

var _ imagesync.Source = (*DriveSource)(nil)

// DriveSource lists the desktop and mobile image folders of the shared drive.
type DriveSource struct {
	files        *drive.FilesService
	mainFolder   string
	mobileFolder string
	logger       *zap.Logger
}

// NewDriveSource creates a DriveSource. opts usually come from ClientOptions;
// tests pass an endpoint and option.WithoutAuthentication.
func NewDriveSource(ctx context.Context, mainFolder, mobileFolder string, logger *zap.Logger, opts ...option.ClientOption) (*DriveSource, error) {
	if mainFolder == "" || mobileFolder == "" {
		return nil, fmt.Errorf("google: both drive folder ids are required")
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriveSource{
		files:        svc.Files,
		mainFolder:   mainFolder,
		mobileFolder: mobileFolder,
		logger:       logger,
	}, nil
}

// ListImages lists both folders concurrently. Files modified after since are
// flagged Recent; a zero since flags nothing. Every file of the mobile folder
// counts as mobile.
func (d *DriveSource) ListImages(ctx context.Context, since time.Time) ([]imagesync.SourceImage, error) {
	var desktop, mobile []imagesync.SourceImage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		desktop, err = d.listFolder(gctx, d.mainFolder, false, since)
		return err
	})
	g.Go(func() error {
		var err error
		mobile, err = d.listFolder(gctx, d.mobileFolder, true, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return append(desktop, mobile...), nil
}

func (d *DriveSource) listFolder(ctx context.Context, folderID string, mobileFolder bool, since time.Time) ([]imagesync.SourceImage, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType contains 'image/' and trashed = false", folderID)
	var images []imagesync.SourceImage
	pageToken := ""
	for {
		call := d.files.List().
			Q(query).
			PageSize(drivePageSize).
			OrderBy("modifiedTime desc").
			Fields(driveFields).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list drive folder %s: %w", folderID, err)
		}
		for _, f := range page.Files {
			img, ok := d.toSourceImage(f, mobileFolder, since)
			if ok {
				images = append(images, img)
			}
		}
		if page.NextPageToken == "" {
			return images, nil
		}
		pageToken = page.NextPageToken
	}
}

func (d *DriveSource) toSourceImage(f *drive.File, mobileFolder bool, since time.Time) (imagesync.SourceImage, bool) {
	parsed, ok := imagesync.ParseFilename(f.Name)
	if !ok {
		d.logger.Debug("Skipping drive file with unparseable name", zap.String("name", f.Name))
		return imagesync.SourceImage{}, false
	}
	if mobileFolder {
		parsed.Mobile = true
	}
	modified, err := time.Parse(time.RFC3339, f.ModifiedTime)
	if err != nil {
		d.logger.Warn("Drive file has invalid modifiedTime",
			zap.String("name", f.Name),
			zap.String("modified_time", f.ModifiedTime),
		)
	}
	return imagesync.SourceImage{
		ID:           f.Id,
		Name:         f.Name,
		Parsed:       parsed,
		ModifiedTime: modified,
		Size:         f.Size,
		Recent:       !since.IsZero() && modified.After(since),
	}, true
}

// Download streams the content of fileID. The caller closes the reader.
func (d *DriveSource) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := d.files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download drive file %s: %w", fileID, err)
	}
	return resp.Body, nil
}
