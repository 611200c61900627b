package evaluation

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/inferloop/modelregistry/pkg/models"
)

// Fingerprint returns a stable digest of a dataset for provenance.
// Row boundaries are part of the encoding, so reshaping the same values
// produces a different fingerprint.
func Fingerprint(data models.Dataset) string {
	h := sha256.New()
	buf := make([]byte, 8)

	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf, v)
		h.Write(buf)
	}
	writeFloat := func(f float64) {
		writeUint(math.Float64bits(f))
	}

	writeUint(uint64(len(data.Features)))
	for _, row := range data.Features {
		writeUint(uint64(len(row)))
		for _, v := range row {
			writeFloat(v)
		}
	}
	writeUint(uint64(len(data.Targets)))
	for _, v := range data.Targets {
		writeFloat(v)
	}

	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
