package uploader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	// Register the decoders the synthesis providers can emit.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ErrInvalidArtifact is the sentinel for payloads rejected before any
// network attempt.
var ErrInvalidArtifact = errors.New("invalid_artifact")

// validate rejects corrupt or masquerading payloads before the first upload
// attempt. Providers under load sometimes return an HTML error page with a
// 200; that must never land in the bucket as an image.
func validate(art RawArtifact, minImageBytes int) error {
	if len(art.Data) == 0 {
		return fmt.Errorf("%w: empty payload (ordinal %d)", ErrInvalidArtifact, art.Ordinal)
	}

	if !strings.HasPrefix(art.ContentType, "image/") {
		if strings.TrimSpace(string(art.Data)) == "" {
			return fmt.Errorf("%w: blank text payload (ordinal %d)", ErrInvalidArtifact, art.Ordinal)
		}
		return nil
	}

	if looksLikeMarkup(art.Data) {
		return fmt.Errorf("%w: textual markup masquerading as image (ordinal %d)", ErrInvalidArtifact, art.Ordinal)
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(art.Data)); err != nil {
		return fmt.Errorf("%w: undecodable image (ordinal %d): %v", ErrInvalidArtifact, art.Ordinal, err)
	}

	if len(art.Data) < minImageBytes {
		return fmt.Errorf("%w: image %d bytes below plausible minimum %d (ordinal %d)",
			ErrInvalidArtifact, len(art.Data), minImageBytes, art.Ordinal)
	}

	return nil
}

func looksLikeMarkup(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if len(trimmed) == 0 {
		return false
	}
	if trimmed[0] != '<' {
		return false
	}
	lower := bytes.ToLower(trimmed)
	return bytes.HasPrefix(lower, []byte("<!doctype")) ||
		bytes.HasPrefix(lower, []byte("<html")) ||
		bytes.HasPrefix(lower, []byte("<?xml")) ||
		bytes.HasPrefix(lower, []byte("<error")) ||
		bytes.HasPrefix(lower, []byte("<body")) ||
		bytes.HasPrefix(lower, []byte("<head"))
}
