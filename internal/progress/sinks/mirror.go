package sinks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/progress"
)

// BlobStore uploads an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// MirrorSink copies every successfully fetched file into a BlobStore under
// prefix/<run id>/<file name>.
type MirrorSink struct {
	blobs  BlobStore
	prefix string
	logger *zap.Logger
}

// NewMirrorSink constructs a MirrorSink.
func NewMirrorSink(blobs BlobStore, prefix string, logger *zap.Logger) *MirrorSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MirrorSink{blobs: blobs, prefix: prefix, logger: logger}
}

// Consume uploads succeeded items. Every upload in the batch is attempted;
// the joined errors are returned.
func (s *MirrorSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.blobs == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Stage != progress.StageItemDone || !evt.Succeeded() || evt.Path == "" {
			continue
		}
		uri, err := s.upload(ctx, evt)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Info("document mirrored", zap.String("url", evt.URL), zap.String("uri", uri))
	}
	return errors.Join(errs...)
}

func (s *MirrorSink) upload(ctx context.Context, evt progress.Event) (string, error) {
	f, err := os.Open(evt.Path)
	if err != nil {
		return "", fmt.Errorf("open %s for mirroring: %w", evt.Path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("close mirrored file", zap.String("path", evt.Path), zap.Error(cerr))
		}
	}()
	name := filepath.Base(evt.Path)
	key := path.Join(s.prefix, evt.RunUUID().String(), name)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	uri, err := s.blobs.PutObject(ctx, key, contentType, f)
	if err != nil {
		return "", fmt.Errorf("mirror %s: %w", evt.Path, err)
	}
	return uri, nil
}

// Close implements the Sink interface; it performs no action.
func (s *MirrorSink) Close(context.Context) error {
	return nil
}
