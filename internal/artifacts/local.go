package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
)

// LocalStore implements ArtifactStore on the local filesystem.
// Artifacts live at basePath/<first two hex chars>/<digest>.
type LocalStore struct {
	logger   *logrus.Logger
	basePath string
}

// NewLocalStore creates a new local artifact store
func NewLocalStore(basePath string, logger *logrus.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if basePath == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "artifact path is required")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.WrapStorageError(err, "init", "local")
	}

	return &LocalStore{
		logger:   logger,
		basePath: basePath,
	}, nil
}

var _ interfaces.ArtifactStore = (*LocalStore)(nil)

func (s *LocalStore) pathFor(digest string) string {
	return filepath.Join(s.basePath, digest[:2], digest)
}

// Put stores an artifact; existing content is left untouched
func (s *LocalStore) Put(ctx context.Context, content []byte) (string, error) {
	ref := RefFor(content)
	digest, _ := parseRef(ref)
	path := s.pathFor(digest)

	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.WrapStorageError(err, "put", "local")
	}

	// Write to a temp file and rename so readers never see partial content
	tmp, err := os.CreateTemp(dir, digest+".tmp-*")
	if err != nil {
		return "", errors.WrapStorageError(err, "put", "local")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", errors.WrapStorageError(err, "put", "local")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", errors.WrapStorageError(err, "put", "local")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.WrapStorageError(err, "put", "local")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.WrapStorageError(err, "put", "local")
	}

	s.logger.WithFields(logrus.Fields{
		"artifact_ref": ref,
		"size":         len(content),
		"path":         path,
	}).Debug("Stored model artifact")

	return ref, nil
}

// Get reads and verifies an artifact
func (s *LocalStore) Get(ctx context.Context, ref string) ([]byte, error) {
	digest, err := parseRef(ref)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(s.pathFor(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(ref)
		}
		return nil, errors.WrapStorageError(err, "get", "local")
	}
	if err := verify(ref, content); err != nil {
		return nil, err
	}
	return content, nil
}

// Exists checks if an artifact exists
func (s *LocalStore) Exists(ctx context.Context, ref string) (bool, error) {
	digest, err := parseRef(ref)
	if err != nil {
		return false, nil
	}

	_, err = os.Stat(s.pathFor(digest))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.WrapStorageError(fmt.Errorf("stat %s: %w", ref, err), "exists", "local")
}
