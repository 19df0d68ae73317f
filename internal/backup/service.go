package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/icheme/portfolio/internal/telemetry/tracing"
)

const (
	DefaultFolderName = "portfolio-backup"
	jsonMimeType      = "application/json"
)

// Table is one exported data set, e.g. all projects.
type Table struct {
	Name   string
	Export func(ctx context.Context) (any, error)
}

type Service struct {
	drive      driveClient
	tables     []Table
	folderName string
	folderID   string
	// optional reader of every created file
	shareWith string
}

// NewService finds the backups folder by name, creating it when missing.
func NewService(ctx context.Context, driveClient driveClient, folderName, shareWith string, tables ...Table) (*Service, error) {
	s := &Service{
		drive:      driveClient,
		tables:     tables,
		folderName: folderName,
		shareWith:  shareWith,
	}

	folders, err := driveClient.FindFolder(ctx, folderName)
	if err != nil {
		return nil, fmt.Errorf("find backups folder: %w", err)
	}

	switch len(folders) {
	case 0:
		log.Printf("backups folder [%s] not found, creating it", folderName)
		if s.folderID, err = s.createFolder(ctx); err != nil {
			return nil, err
		}
	case 1:
		s.folderID = folders[0].Id
	default:
		log.Warnf("found %d backups folders named [%s], using the first one: %s", len(folders), folderName, folders[0].Id)
		s.folderID = folders[0].Id
	}
	log.Debugf("backups folder: %s", s.folderID)

	return s, nil
}

func (s *Service) FolderID() string {
	return s.folderID
}

// Reinit removes the backups folder with everything in it, then backs up from scratch.
func (s *Service) Reinit(ctx context.Context, baseTime time.Time) error {
	log.Println("backups reinit starting")
	if err := s.drive.Delete(ctx, s.folderID); err != nil {
		return fmt.Errorf("delete backups folder: %w", err)
	}

	folderID, err := s.createFolder(ctx)
	if err != nil {
		return err
	}
	s.folderID = folderID

	_, err = s.DoBackup(ctx, baseTime)
	return err
}

// DoBackup writes one <table>-<date>.json file per table and returns the created file names.
func (s *Service) DoBackup(ctx context.Context, baseTime time.Time) (_ []string, err error) {
	ctx, span := tracing.GlobalBackupTracer.Start(ctx, "backup.do")
	span.SetAttributes(attribute.String("folder.id", s.folderID))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	existing, err := s.drive.ListFiles(ctx, s.folderID)
	if err != nil {
		return nil, fmt.Errorf("list backup files: %w", err)
	}
	names := make([]string, 0, len(existing))
	for _, f := range existing {
		names = append(names, f.Name)
	}

	var created []string
	for _, table := range s.tables {
		data, err := table.Export(ctx)
		if err != nil {
			return created, fmt.Errorf("export %s: %w", table.Name, err)
		}
		content, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return created, fmt.Errorf("marshal %s: %w", table.Name, err)
		}

		fileName := nextFileName(table.Name, baseTime, names)
		fileID, err := s.drive.CreateFile(ctx, fileName, jsonMimeType, s.folderID, content)
		if err != nil {
			return created, fmt.Errorf("create backup file %s: %w", fileName, err)
		}
		if err := s.share(ctx, fileID); err != nil {
			return created, fmt.Errorf("share backup file %s: %w", fileName, err)
		}

		log.Printf("backup file %s saved: %s, %d bytes", fileName, fileID, len(content))
		names = append(names, fileName)
		created = append(created, fileName)
	}

	return created, nil
}

func (s *Service) createFolder(ctx context.Context) (string, error) {
	folderID, err := s.drive.CreateFolder(ctx, s.folderName)
	if err != nil {
		return "", fmt.Errorf("create backups folder: %w", err)
	}
	if err := s.share(ctx, folderID); err != nil {
		return folderID, fmt.Errorf("share backups folder: %w", err)
	}
	log.Printf("backups folder created: %s", folderID)
	return folderID, nil
}

func (s *Service) share(ctx context.Context, fileID string) error {
	if s.shareWith == "" {
		return nil
	}
	permissionID, err := s.drive.Share(ctx, fileID, s.shareWith)
	if err != nil {
		return err
	}
	log.Tracef("permission %s created for %s", permissionID, fileID)
	return nil
}

// nextFileName returns <table>-<yyyy-mm-dd>.json, adding a _<n> suffix when a backup
// with that name already exists.
func nextFileName(table string, baseTime time.Time, existing []string) string {
	base := fmt.Sprintf("%s-%s", table, baseTime.Format(time.DateOnly))
	name := base + ".json"
	for i := 2; slices.Contains(existing, name); i++ {
		name = fmt.Sprintf("%s_%d.json", base, i)
	}
	return name
}
