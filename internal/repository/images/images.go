// Package images stores pictures attached to documents, one directory per document.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/markedit/internal/model"
	"github.com/debemdeboas/markedit/internal/routes"
)

var imagesLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	imagesLogger = l
}

var (
	ErrNotFound    = errors.New("image not found")
	ErrUnsupported = errors.New("unsupported image type")
	ErrTooLarge    = errors.New("image too large")
	ErrInvalidName = errors.New("invalid image name")
)

// extensions maps accepted content types to the extension stored files get. The extension is
// how Open recovers the content type.
var extensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

type Image struct {
	DocumentID  model.DocumentID `json:"documentId"`
	Name        string           `json:"name"`
	ContentType string           `json:"contentType"`
	Size        int64            `json:"size"`
	ModTime     time.Time        `json:"modTime"`
}

// URL is the relative path the image is served from.
func (i Image) URL() string {
	r := strings.NewReplacer("{id}", string(i.DocumentID), "{name}", i.Name)
	return r.Replace(routes.Image)
}

// Markdown embeds the image with alt as its description.
func (i Image) Markdown(alt string) string {
	if alt == "" {
		alt = "image"
	}
	alt = strings.NewReplacer("[", "", "]", "").Replace(alt)
	return "![" + alt + "](" + i.URL() + ")"
}

// Store keeps images under dir/<document id>/<name>. Names are the upload time in unix
// milliseconds plus the detected type's extension.
type Store struct {
	dir     string
	maxSize int64
	now     func() time.Time
}

func NewStore(dir string, maxSize int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating images directory %s: %w", dir, err)
	}
	return &Store{dir: dir, maxSize: maxSize, now: time.Now}, nil
}

func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// MaxSize is the largest accepted upload in bytes.
func (s *Store) MaxSize() int64 {
	return s.maxSize
}

func (s *Store) docDir(id model.DocumentID) (string, error) {
	clean, err := model.ParseDocumentID(string(id))
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, string(clean)), nil
}

// Put stores the image read from r. The content, not a client-supplied name, decides the type.
func (s *Store) Put(ctx context.Context, id model.DocumentID, r io.Reader) (Image, error) {
	dir, err := s.docDir(id)
	if err != nil {
		return Image{}, err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return Image{}, fmt.Errorf("error reading image: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return Image{}, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxSize)
	}

	mt := mimetype.Detect(data)
	ext := ""
	for ct, e := range extensions {
		if mt.Is(ct) {
			ext = e
			break
		}
	}
	if ext == "" {
		return Image{}, fmt.Errorf("%w: %s", ErrUnsupported, mt.String())
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Image{}, fmt.Errorf("error creating image directory: %w", err)
	}

	stamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	for n := 0; ; n++ {
		name := stamp + ext
		if n > 0 {
			name = stamp + "-" + strconv.Itoa(n) + ext
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return Image{}, fmt.Errorf("error creating image: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(f.Name())
			return Image{}, fmt.Errorf("error writing image: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return Image{}, fmt.Errorf("error writing image: %w", err)
		}

		img := Image{DocumentID: id, Name: name, ContentType: contentType(ext), Size: int64(len(data)), ModTime: s.now().UTC()}
		imagesLogger.Debug().Str("document_id", string(id)).Str("name", name).Int64("bytes", img.Size).Msg("Image stored")
		return img, nil
	}
}

// Open returns the stored file and its metadata. The caller closes the file.
func (s *Store) Open(ctx context.Context, id model.DocumentID, name string) (*os.File, Image, error) {
	dir, err := s.docDir(id)
	if err != nil {
		return nil, Image{}, err
	}
	ct, err := checkName(name)
	if err != nil {
		return nil, Image{}, err
	}

	f, err := os.Open(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, Image{}, ErrNotFound
	}
	if err != nil {
		return nil, Image{}, fmt.Errorf("error opening image: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Image{}, fmt.Errorf("error opening image: %w", err)
	}
	return f, Image{DocumentID: id, Name: name, ContentType: ct, Size: info.Size(), ModTime: info.ModTime().UTC()}, nil
}

// List returns the document's images, oldest first.
func (s *Store) List(ctx context.Context, id model.DocumentID) ([]Image, error) {
	dir, err := s.docDir(id)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Image{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error listing images: %w", err)
	}

	list := make([]Image, 0, len(entries))
	for _, entry := range entries {
		ct, err := checkName(entry.Name())
		if entry.IsDir() || err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			imagesLogger.Warn().Err(err).Str("name", entry.Name()).Msg("Skipping unreadable image")
			continue
		}
		list = append(list, Image{DocumentID: id, Name: entry.Name(), ContentType: ct, Size: info.Size(), ModTime: info.ModTime().UTC()})
	}
	slices.SortFunc(list, func(a, b Image) int { return strings.Compare(a.Name, b.Name) })
	return list, nil
}

// DeleteAll removes every image of the document. It succeeds when there is nothing to delete.
func (s *Store) DeleteAll(ctx context.Context, id model.DocumentID) error {
	dir, err := s.docDir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("error deleting images: %w", err)
	}
	return nil
}

// checkName accepts bare file names with a stored extension and returns their content type.
func checkName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	ct := contentType(strings.ToLower(filepath.Ext(name)))
	if ct == "" {
		return "", ErrInvalidName
	}
	return ct, nil
}

func contentType(ext string) string {
	for ct, e := range extensions {
		if e == ext {
			return ct
		}
	}
	return ""
}
