package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// UploadStore persists uploaded attachments as flat files under a base
// directory and maps them to public URLs. Filenames carry a timestamp and a
// random component so concurrent uploads never collide.
type UploadStore struct {
	baseDir    string
	publicPath string
}

// NewUploadStore ensures the base directory exists and returns a handle.
func NewUploadStore(baseDir, publicPath string) (*UploadStore, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if publicPath == "" {
		publicPath = "/uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &UploadStore{baseDir: baseDir, publicPath: "/" + strings.Trim(publicPath, "/")}, nil
}

// GenerateFilename builds a collision-resistant name for an uploaded file.
func (s *UploadStore) GenerateFilename(original string) string {
	base := filepath.Base(original)
	base = whitespaceRe.ReplaceAllString(base, "_")
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), suffix, base)
}

// SaveMultipart writes one multipart file into the store and returns the
// generated filename.
func (s *UploadStore) SaveMultipart(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close() //nolint:errcheck

	filename := s.GenerateFilename(fh.Filename)
	dst, err := os.Create(filepath.Join(s.baseDir, filename))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close() //nolint:errcheck

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return filename, nil
}

// Delete removes a stored file. A missing file is not an error: removal lists
// may reference attachments that were already cleaned up.
func (s *UploadStore) Delete(filename string) error {
	if filename == "" {
		return nil
	}
	p := filepath.Join(s.baseDir, filepath.Base(filename))
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload file: %w", err)
	}
	return nil
}

// DeleteURL tolerantly removes the file a public URL points at. URLs that do
// not reference this store's public path are ignored.
func (s *UploadStore) DeleteURL(fileURL string) error {
	filename, ok := s.FilenameFromURL(fileURL)
	if !ok {
		return nil
	}
	return s.Delete(filename)
}

// FilenameFromURL extracts the stored filename from a public attachment URL.
func (s *UploadStore) FilenameFromURL(fileURL string) (string, bool) {
	if fileURL == "" || !strings.Contains(fileURL, s.publicPath+"/") {
		return "", false
	}
	return path.Base(fileURL), true
}

// URL returns the absolute public URL for a stored filename.
func (s *UploadStore) URL(baseURL, filename string) string {
	return strings.TrimRight(baseURL, "/") + s.publicPath + "/" + filename
}

// PublicPath exposes the URL prefix the store serves files under.
func (s *UploadStore) PublicPath() string {
	return s.publicPath
}

// Dir exposes the base directory for static file serving.
func (s *UploadStore) Dir() string {
	return s.baseDir
}

// Path resolves the absolute on-disk path of a stored filename.
func (s *UploadStore) Path(filename string) string {
	return filepath.Join(s.baseDir, filepath.Base(filename))
}
