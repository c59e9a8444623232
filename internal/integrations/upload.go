package integrations

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MaxUploadBytes caps a single upload.
const MaxUploadBytes = 10 << 20

var (
	ErrFileNotFound = errors.New("file not found")
	ErrFileTooLarge = fmt.Errorf("file exceeds %d bytes", MaxUploadBytes)
)

// Upload is the result of storing a file.
type Upload struct {
	FileURL string `json:"file_url"`
}

// File is an upload request.
type File struct {
	Name string
	Data []byte
}

// StoredFile is an uploaded file as kept in memory.
type StoredFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileStore keeps uploads in memory and hands out URLs under BaseURL.
type FileStore struct {
	BaseURL string

	mu    sync.RWMutex
	files map[string]StoredFile
}

// NewFileStore serves files under baseURL, e.g. "/files".
func NewFileStore(baseURL string) *FileStore {
	return &FileStore{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		files:   make(map[string]StoredFile),
	}
}

// UploadFile stores data under a generated name and returns its URL.
func (fs *FileStore) UploadFile(ctx context.Context, f File) (Upload, error) {
	if err := ctx.Err(); err != nil {
		return Upload{}, err
	}
	if len(f.Data) > MaxUploadBytes {
		return Upload{}, ErrFileTooLarge
	}

	contentType := http.DetectContentType(f.Data)
	ext := path.Ext(f.Name)
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	name := uuid.NewString() + ext

	fs.mu.Lock()
	fs.files[name] = StoredFile{Name: name, ContentType: contentType, Data: append([]byte(nil), f.Data...)}
	fs.mu.Unlock()

	return Upload{FileURL: fs.BaseURL + "/" + name}, nil
}

// UploadFiles uploads files concurrently. The result order matches files.
func (fs *FileStore) UploadFiles(ctx context.Context, files []File) ([]Upload, error) {
	out := make([]Upload, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			u, err := fs.UploadFile(gctx, f)
			if err != nil {
				return fmt.Errorf("upload %q: %w", f.Name, err)
			}
			out[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Open returns a stored file by name.
func (fs *FileStore) Open(name string) (StoredFile, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	f, ok := fs.files[name]
	if !ok {
		return StoredFile{}, ErrFileNotFound
	}
	return f, nil
}

// Resolve maps a URL handed out by this store back to the file. Absolute
// URLs pointing at a relative BaseURL are matched by path.
func (fs *FileStore) Resolve(fileURL string) (StoredFile, error) {
	prefix := fs.BaseURL + "/"
	if strings.HasPrefix(fileURL, prefix) {
		return fs.Open(strings.TrimPrefix(fileURL, prefix))
	}
	if u, err := url.Parse(fileURL); err == nil && u.Host != "" && strings.HasPrefix(u.Path, prefix) {
		return fs.Open(strings.TrimPrefix(u.Path, prefix))
	}
	return StoredFile{}, ErrFileNotFound
}
