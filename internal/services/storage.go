package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"alfredoptarigan/report-console/internal/models"
)

// StorageService stages browser uploads on local disk so they can be
// validated and streamed to the backend.
type StorageService interface {
	SaveFile(file *multipart.FileHeader, slot models.SlotName) (LocalFile, error)
	DeleteFile(file LocalFile) error
	EnsureUploadDir() error
}

type storageService struct {
	uploadPath  string
	maxFileSize int64
}

func NewStorageService(uploadPath string, maxFileSize int64) StorageService {
	return &storageService{
		uploadPath:  uploadPath,
		maxFileSize: maxFileSize,
	}
}

func (s *storageService) EnsureUploadDir() error {
	if err := os.MkdirAll(s.uploadPath, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	return nil
}

// SaveFile writes the upload under a unique name. The returned LocalFile
// keeps the original file name for display and multipart upload.
func (s *storageService) SaveFile(file *multipart.FileHeader, slot models.SlotName) (LocalFile, error) {
	name := filepath.Base(file.Filename)
	if name == "." || name == string(filepath.Separator) || strings.TrimSpace(name) == "" {
		return LocalFile{}, &ValidationError{Message: "文件名无效"}
	}
	if s.maxFileSize > 0 && file.Size > s.maxFileSize {
		return LocalFile{}, &ValidationError{Message: fmt.Sprintf("文件过大，最大允许 %dMB", s.maxFileSize>>20)}
	}

	ext := strings.ToLower(filepath.Ext(name))
	uniqueFilename := fmt.Sprintf("%s_%s%s", slot, uuid.New().String(), ext)
	filePath := filepath.Join(s.uploadPath, uniqueFilename)

	src, err := file.Open()
	if err != nil {
		return LocalFile{}, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filePath)
	if err != nil {
		return LocalFile{}, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(filePath)
		return LocalFile{}, fmt.Errorf("failed to save file: %w", err)
	}

	return LocalFile{Name: name, Path: filePath, Size: written}, nil
}

func (s *storageService) DeleteFile(file LocalFile) error {
	if err := os.Remove(file.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
