package media

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"mime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/csheth/medscan/internal/apperr"
)

// Origin records how an image entered the client.
type Origin string

const (
	OriginUploaded Origin = "uploaded"
	OriginCaptured Origin = "captured"
)

const capturedMIMEType = "image/jpeg"

// Image is an encoded picture held in memory. The zero value means "no image".
// Images are never mutated; a new submission replaces the value wholesale.
type Image struct {
	id        uuid.UUID
	data      []byte
	mimeType  string
	origin    Origin
	digest    string
	createdAt time.Time
}

// FromUpload validates an uploaded file and wraps it as an Image. Only image/*
// types are accepted; an empty declared type is resolved by sniffing the bytes.
func FromUpload(data []byte, declaredMIME string) (Image, error) {
	mediaType := normalizeMIME(declaredMIME)
	if mediaType == "" {
		mediaType = normalizeMIME(mimetype.Detect(data).String())
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return Image{}, apperr.UnsupportedType(mediaType)
	}
	if len(data) == 0 {
		return Image{}, apperr.InvalidInput("The selected image is empty", nil)
	}
	return newImage(data, mediaType, OriginUploaded), nil
}

// FromCapture wraps a camera frame. Frames are produced by the capture device as
// JPEG and need no further validation.
func FromCapture(frame []byte) Image {
	return newImage(frame, capturedMIMEType, OriginCaptured)
}

func newImage(data []byte, mimeType string, origin Origin) Image {
	owned := append([]byte(nil), data...)
	sum := sha256.Sum256(owned)
	return Image{
		id:        uuid.New(),
		data:      owned,
		mimeType:  mimeType,
		origin:    origin,
		digest:    hex.EncodeToString(sum[:]),
		createdAt: time.Now(),
	}
}

func normalizeMIME(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(value)
	}
	return strings.ToLower(mediaType)
}

func (i Image) ID() uuid.UUID        { return i.id }
func (i Image) MIMEType() string     { return i.mimeType }
func (i Image) Origin() Origin       { return i.origin }
func (i Image) Digest() string       { return i.digest }
func (i Image) Size() int            { return len(i.data) }
func (i Image) CreatedAt() time.Time { return i.createdAt }

// IsZero reports whether i holds no image.
func (i Image) IsZero() bool {
	return i.id == uuid.Nil
}

// Bytes returns a copy of the encoded payload.
func (i Image) Bytes() []byte {
	return append([]byte(nil), i.data...)
}

// DataURL renders the payload the way the analysis service expects it.
func (i Image) DataURL() string {
	var b strings.Builder
	b.Grow(len(i.mimeType) + 13 + base64.StdEncoding.EncodedLen(len(i.data)))
	b.WriteString("data:")
	b.WriteString(i.mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(i.data))
	return b.String()
}

// ShortDigest is the digest prefix used in labels and report keys.
func (i Image) ShortDigest() string {
	if len(i.digest) <= 12 {
		return i.digest
	}
	return i.digest[:12]
}
