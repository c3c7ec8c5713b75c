package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"jorfline/internal/domain"
)

const attachmentColumns = `id,request_id,file_name,path,size,mime_type,uploaded_by,uploaded_at,deleted_at`

func scanAttachment(s rowScanner) (domain.Attachment, error) {
	var a domain.Attachment
	var deleted sql.NullString
	err := s.Scan(&a.ID, &a.RequestID, &a.FileName, &a.Path, &a.Size, &a.MimeType, &a.UploadedBy, &a.UploadedAt, &deleted)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if deleted.Valid {
		v := deleted.String
		a.DeletedAt = &v
	}
	return a, err
}

// InsertAttachment appends attachment metadata. The blob itself lives elsewhere.
func (r Repo) InsertAttachment(ctx context.Context, tx *sql.Tx, a domain.Attachment) (domain.Attachment, error) {
	if a.RequestID == 0 {
		return a, errors.New("request_id required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO attachments(`+attachmentColumns+`) VALUES (?,?,?,?,?,?,?,?,NULL)`,
		a.ID, a.RequestID, a.FileName, a.Path, a.Size, a.MimeType, a.UploadedBy, a.UploadedAt)
	if err != nil {
		return a, fmt.Errorf("insert attachment: %w", err)
	}
	return a, nil
}

func (r Repo) GetAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	return scanAttachment(r.DB.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id=?`, id))
}

// ListAttachments returns live attachments of a request in upload order.
func (r Repo) ListAttachments(ctx context.Context, requestID int64) ([]domain.Attachment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE request_id=? AND deleted_at IS NULL ORDER BY uploaded_at, id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r Repo) SoftDeleteAttachment(ctx context.Context, tx *sql.Tx, id, ts string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE attachments SET deleted_at=? WHERE id=? AND deleted_at IS NULL`, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
