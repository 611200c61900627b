package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/inferloop/modelregistry/pkg/errors"
)

const refPrefix = "sha256:"

// RefFor returns the content address of content
func RefFor(content []byte) string {
	sum := sha256.Sum256(content)
	return refPrefix + hex.EncodeToString(sum[:])
}

// parseRef returns the hex digest of ref. Malformed references cannot name
// stored content, so they are reported as not found.
func parseRef(ref string) (string, error) {
	digest, ok := strings.CutPrefix(ref, refPrefix)
	if !ok || len(digest) != sha256.Size*2 {
		return "", errors.NewNotFoundError(errors.CodeArtifactNotFound,
			fmt.Sprintf("malformed artifact reference %q", ref))
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", errors.NewNotFoundError(errors.CodeArtifactNotFound,
			fmt.Sprintf("malformed artifact reference %q", ref))
	}
	return digest, nil
}

// verify checks that content still hashes to ref
func verify(ref string, content []byte) error {
	if RefFor(content) != ref {
		return errors.NewStorageError(errors.CodeCorruptArtifact,
			fmt.Sprintf("artifact %s does not match its digest", ref))
	}
	return nil
}

func notFound(ref string) error {
	return errors.NewNotFoundError(errors.CodeArtifactNotFound,
		fmt.Sprintf("artifact not found: %s", ref))
}
