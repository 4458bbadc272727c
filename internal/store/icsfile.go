package store

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gosimple/slug"

	"calrecon/internal/config"
	"calrecon/internal/ics"
	appLog "calrecon/internal/log"
	"calrecon/internal/model"
)

// ICSFile is a Store backed by one parsed calendar. Writes change the
// in-memory document; Flush renders it to Path.
type ICSFile struct {
	Path string

	doc   *ics.Document
	stamp time.Time
	dirty bool
}

// NewICSFile returns a store over doc that flushes to
// <outputDir>/<slug(source id)>.ics. stamp is written as DTSTAMP on every
// event touched.
func NewICSFile(doc *ics.Document, outputDir string, stamp time.Time) *ICSFile {
	return &ICSFile{
		Path:  OutputPath(outputDir, doc.Source.ID),
		doc:   doc,
		stamp: stamp,
	}
}

// OutputPath is where the reconciled calendar of a source is written.
func OutputPath(outputDir, sourceID string) string {
	name := slug.Make(sourceID)
	if name == "" {
		name = "calendar"
	}
	return filepath.Join(outputDir, name+".ics")
}

func (s *ICSFile) Save(ctx context.Context, ev model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.doc.Upsert(ev, s.stamp)
	s.dirty = true
	return nil
}

func (s *ICSFile) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.doc.Remove(id) {
		return ErrNotFound
	}
	s.dirty = true
	return nil
}

// CompleteReminder marks a converted reminder as done.
func (s *ICSFile) CompleteReminder(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.doc.CompleteReminder(id, s.stamp) {
		return ErrNotFound
	}
	s.dirty = true
	return nil
}

// Flush writes the calendar to Path atomically. The file is written even
// when nothing changed so every source has an up to date output.
func (s *ICSFile) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := config.WriteFileAtomic(s.Path, []byte(s.doc.Serialize())); err != nil {
		return err
	}
	appLog.Info("calendar written", "path", s.Path, "changed", s.dirty)
	s.dirty = false
	return nil
}
