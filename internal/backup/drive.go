package backup

import (
	"bytes"
	"context"
	"fmt"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// driveClient is the part of Google Drive the backup service needs.
type driveClient interface {
	FindFolder(ctx context.Context, name string) ([]*drive.File, error)
	ListFiles(ctx context.Context, folderID string) ([]*drive.File, error)
	CreateFolder(ctx context.Context, name string) (string, error)
	CreateFile(ctx context.Context, name, mimeType, folderID string, content []byte) (string, error)
	Share(ctx context.Context, fileID, email string) (string, error)
	Delete(ctx context.Context, fileID string) error
}

type GoogleDrive struct {
	service *drive.Service
}

var _ driveClient = (*GoogleDrive)(nil)

func NewGoogleDrive(ctx context.Context, credentialsJSON []byte) (*GoogleDrive, error) {
	service, err := drive.NewService(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}
	return &GoogleDrive{service: service}, nil
}

func (d *GoogleDrive) FindFolder(ctx context.Context, name string) ([]*drive.File, error) {
	q := fmt.Sprintf("mimeType = '%s' and trashed = false and name = '%s'", folderMimeType, name)
	res, err := d.service.Files.List().
		Q(q).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return res.Files, nil
}

func (d *GoogleDrive) ListFiles(ctx context.Context, folderID string) ([]*drive.File, error) {
	q := fmt.Sprintf("'%s' in parents and mimeType != '%s' and trashed = false", folderID, folderMimeType)
	var files []*drive.File
	err := d.service.Files.List().
		Q(q).
		Fields("nextPageToken, files(id, name, createdTime)").
		Pages(ctx, func(page *drive.FileList) error {
			files = append(files, page.Files...)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (d *GoogleDrive) CreateFolder(ctx context.Context, name string) (string, error) {
	folder, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
	}).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return folder.Id, nil
}

func (d *GoogleDrive) CreateFile(ctx context.Context, name, mimeType, folderID string, content []byte) (string, error) {
	file, err := d.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{folderID},
	}).
		Fields("id, parents").
		Media(bytes.NewReader(content)).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return file.Id, nil
}

// Share gives the email read access to the file, so a service account's backups
// show up in a personal drive.
func (d *GoogleDrive) Share(ctx context.Context, fileID, email string) (string, error) {
	permission, err := d.service.Permissions.Create(fileID, &drive.Permission{
		EmailAddress: email,
		Type:         "user",
		Role:         "reader",
	}).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return permission.Id, nil
}

func (d *GoogleDrive) Delete(ctx context.Context, fileID string) error {
	return d.service.Files.Delete(fileID).Context(ctx).Do()
}
