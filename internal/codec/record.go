package codec

import (
	"fmt"
	"time"

	"gridsilo/internal/upload"
)

// fileRecord is the on-the-wire shape of upload.File. Field names follow
// the GridFS files collection.
type fileRecord struct {
	ID                string         `cbor:"_id"`
	Filename          string         `cbor:"filename"`
	Length            int64          `cbor:"length"`
	ChunkSize         int            `cbor:"chunkSize"`
	UploadDate        time.Time      `cbor:"uploadDate"`
	Checksum          string         `cbor:"checksum"`
	ChecksumAlgorithm string         `cbor:"checksumAlgorithm"`
	Metadata          map[string]any `cbor:"metadata,omitempty"`
}

// MarshalFile encodes a file record.
func MarshalFile(file upload.File) ([]byte, error) {
	data, err := Marshal(fileRecord{
		ID:                string(file.ID),
		Filename:          file.Filename,
		Length:            file.Length,
		ChunkSize:         file.ChunkSize,
		UploadDate:        file.UploadDate.UTC(),
		Checksum:          file.Checksum,
		ChecksumAlgorithm: string(file.ChecksumAlgorithm),
		Metadata:          file.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("encode file record %s: %w", file.ID, err)
	}
	return data, nil
}

// UnmarshalFile decodes a file record produced by MarshalFile.
func UnmarshalFile(data []byte) (upload.File, error) {
	var rec fileRecord
	if err := Unmarshal(data, &rec); err != nil {
		return upload.File{}, fmt.Errorf("decode file record: %w", err)
	}
	return upload.File{
		ID:                upload.FileID(rec.ID),
		Filename:          rec.Filename,
		Length:            rec.Length,
		ChunkSize:         rec.ChunkSize,
		UploadDate:        rec.UploadDate.UTC(),
		Checksum:          rec.Checksum,
		ChecksumAlgorithm: upload.ChecksumAlgorithm(rec.ChecksumAlgorithm),
		Metadata:          rec.Metadata,
	}, nil
}
