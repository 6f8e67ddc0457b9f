package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/product-similarity/internal/similarity/vector"
	apperrors "github.com/Adithya-Monish-Kumar-K/product-similarity/pkg/errors"
)

// Blob names, shared by every backend.
const (
	ModelBlob  = "model"
	MatrixBlob = "matrix"
	IDsBlob    = "ids"
)

// Blobs lists the blob names in write order.
var Blobs = []string{ModelBlob, MatrixBlob, IDsBlob}

// Each blob is framed as: 16-byte header (magic, version, payload length),
// JSON payload, 4-byte CRC32 of the payload.
const (
	MagicBytes    uint32 = 0x52435342
	FormatVersion uint32 = 1
	HeaderSize    int    = 16
	FooterSize    int    = 4
)

type modelPayload struct {
	Generation string        `json:"generation"`
	BuiltAt    time.Time     `json:"built_at"`
	Model      *vector.Model `json:"model"`
}

type matrixPayload struct {
	Generation string         `json:"generation"`
	Matrix     *vector.Matrix `json:"matrix"`
}

type idsPayload struct {
	Generation string  `json:"generation"`
	ProductIDs []int64 `json:"product_ids"`
}

// encode serialises a into its three framed blobs.
func encode(a *Artifact) (map[string][]byte, error) {
	ids := a.ProductIDs
	if ids == nil {
		ids = []int64{}
	}
	payloads := map[string]any{
		ModelBlob:  modelPayload{Generation: a.Generation, BuiltAt: a.BuiltAt, Model: a.Model},
		MatrixBlob: matrixPayload{Generation: a.Generation, Matrix: a.Matrix},
		IDsBlob:    idsPayload{Generation: a.Generation, ProductIDs: ids},
	}
	out := make(map[string][]byte, len(payloads))
	for name, p := range payloads {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s blob: %w", name, err)
		}
		out[name] = frame(data)
	}
	return out, nil
}

// decode rebuilds an artifact from its blobs and validates it. A missing or
// damaged blob is reported as corruption.
func decode(blobs map[string][]byte) (*Artifact, error) {
	raw := make(map[string][]byte, len(Blobs))
	for _, name := range Blobs {
		b, ok := blobs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s blob missing", apperrors.ErrArtifactCorrupt, name)
		}
		payload, err := unframe(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %s blob: %v", apperrors.ErrArtifactCorrupt, name, err)
		}
		raw[name] = payload
	}

	var mp modelPayload
	var xp matrixPayload
	var ip idsPayload
	if err := json.Unmarshal(raw[ModelBlob], &mp); err != nil {
		return nil, fmt.Errorf("%w: parsing model: %v", apperrors.ErrArtifactCorrupt, err)
	}
	if err := json.Unmarshal(raw[MatrixBlob], &xp); err != nil {
		return nil, fmt.Errorf("%w: parsing matrix: %v", apperrors.ErrArtifactCorrupt, err)
	}
	if err := json.Unmarshal(raw[IDsBlob], &ip); err != nil {
		return nil, fmt.Errorf("%w: parsing product ids: %v", apperrors.ErrArtifactCorrupt, err)
	}
	if mp.Generation != xp.Generation || mp.Generation != ip.Generation {
		return nil, fmt.Errorf("%w: blobs from different generations (%q, %q, %q)",
			apperrors.ErrArtifactCorrupt, mp.Generation, xp.Generation, ip.Generation)
	}
	if ip.ProductIDs == nil {
		ip.ProductIDs = []int64{}
	}
	a := &Artifact{
		Generation: mp.Generation,
		BuiltAt:    mp.BuiltAt,
		Model:      mp.Model,
		Matrix:     xp.Matrix,
		ProductIDs: ip.ProductIDs,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func frame(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(payload) + FooterSize)
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(payload)))
	buf.Write(header)
	buf.Write(payload)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer, crc32.ChecksumIEEE(payload))
	buf.Write(footer)
	return buf.Bytes()
}

func unframe(b []byte) ([]byte, error) {
	if len(b) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("truncated: %d bytes", len(b))
	}
	if magic := binary.LittleEndian.Uint32(b[0:4]); magic != MagicBytes {
		return nil, fmt.Errorf("bad magic bytes %x", magic)
	}
	if v := binary.LittleEndian.Uint32(b[4:8]); v != FormatVersion {
		return nil, fmt.Errorf("unsupported format version %d", v)
	}
	size := binary.LittleEndian.Uint64(b[8:16])
	if size != uint64(len(b)-HeaderSize-FooterSize) {
		return nil, fmt.Errorf("payload length %d does not match blob size %d", size, len(b))
	}
	payload := b[HeaderSize : len(b)-FooterSize]
	want := binary.LittleEndian.Uint32(b[len(b)-FooterSize:])
	if got := crc32.ChecksumIEEE(payload); got != want {
		return nil, fmt.Errorf("checksum mismatch: got %x, want %x", got, want)
	}
	return payload, nil
}
