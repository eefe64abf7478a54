package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"studentapi/internal/roster"
	"studentapi/internal/storage"
)

// ExportResult describes an uploaded roster workbook.
type ExportResult struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Count     int       `json:"count"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RowError reports why a spreadsheet row was not imported.
type RowError struct {
	Row     int          `json:"row"`
	Details []FieldError `json:"details"`
}

// ImportResult summarizes a roster import.
type ImportResult struct {
	Created  int        `json:"created"`
	Rejected []RowError `json:"rejected"`
}

// RosterService moves the student list in and out of .xlsx workbooks.
type RosterService interface {
	// Export renders all students into a workbook, uploads it to object
	// storage and returns a presigned download link.
	Export(ctx context.Context) (*ExportResult, error)

	// Import creates one student per data row of the workbook read from r.
	// Rows failing validation are reported, not created. Rows created
	// before a store failure stay created.
	Import(ctx context.Context, r io.Reader) (*ImportResult, error)
}

type rosterService struct {
	store    storage.Storage
	students StudentService
	linkTTL  time.Duration
	now      func() time.Time
}

// NewRosterService constructs a RosterService. store may be nil, in which
// case Export fails with ErrStorageUnavailable.
func NewRosterService(store storage.Storage, students StudentService, linkTTL time.Duration) RosterService {
	return &rosterService{
		store:    store,
		students: students,
		linkTTL:  linkTTL,
		now:      time.Now,
	}
}

func (s *rosterService) Export(ctx context.Context) (_ *ExportResult, err error) {
	ctx, span := tracer.Start(ctx, "RosterService.Export")
	defer func() { endSpan(span, err) }()

	if s.store == nil {
		return nil, ErrStorageUnavailable
	}

	items, err := s.students.List(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := roster.Write(&buf, items); err != nil {
		return nil, fmt.Errorf("render roster: %w", err)
	}

	now := s.now().UTC()
	key := fmt.Sprintf("exports/students-%s-%s.xlsx", now.Format("20060102T150405Z"), uuid.NewString()[:8])
	span.SetAttributes(attribute.String("export.key", key), attribute.Int("student.count", len(items)))

	obj, err := s.store.Put(ctx, key, bytes.NewReader(buf.Bytes()), storage.PutObjectOptions{
		Size:        int64(buf.Len()),
		ContentType: roster.ContentType,
		Metadata: map[string]string{
			"student-count": strconv.Itoa(len(items)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload roster: %w", err)
	}

	link, err := s.store.PresignGet(ctx, obj.Key, s.linkTTL)
	if err != nil {
		// Rollback: delete the uploaded object
		if delErr := s.store.Delete(ctx, obj.Key); delErr != nil {
			return nil, fmt.Errorf("presign roster failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("presign roster: %w", err)
	}

	return &ExportResult{
		Key:       obj.Key,
		URL:       link,
		Count:     len(items),
		ExpiresAt: now.Add(s.linkTTL),
	}, nil
}

func (s *rosterService) Import(ctx context.Context, r io.Reader) (_ *ImportResult, err error) {
	ctx, span := tracer.Start(ctx, "RosterService.Import")
	defer func() { endSpan(span, err) }()

	rows, err := roster.Read(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoster, err)
	}

	res := &ImportResult{Rejected: make([]RowError, 0)}
	for _, row := range rows {
		_, err := s.students.Create(ctx, row.Input)
		var verr *ValidationError
		switch {
		case err == nil:
			res.Created++
		case errors.As(err, &verr):
			res.Rejected = append(res.Rejected, RowError{Row: row.Line, Details: verr.Fields})
		default:
			return nil, fmt.Errorf("import row %d: %w", row.Line, err)
		}
	}

	span.SetAttributes(
		attribute.Int("import.created", res.Created),
		attribute.Int("import.rejected", len(res.Rejected)),
	)
	return res, nil
}
