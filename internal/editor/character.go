package editor

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// Provenance records where a character's data came from.
type Provenance string

const (
	ProvenanceAniList   Provenance = "anilist"
	ProvenanceJikan     Provenance = "jikan"
	ProvenanceUploaded  Provenance = "uploaded"
	ProvenanceURL       Provenance = "pasted-url"
	ProvenanceWebSearch Provenance = "web-search"
	ProvenanceImported  Provenance = "imported"
	ProvenanceShared    Provenance = "shared"
)

// NameEditable reports whether the user may rename characters of this provenance.
func (p Provenance) NameEditable() bool {
	switch p {
	case ProvenanceUploaded, ProvenanceURL, ProvenanceWebSearch:
		return true
	}
	return false
}

// GallerySearchable reports whether more images can be searched for by name.
func (p Provenance) GallerySearchable() bool {
	return p != ProvenanceUploaded && p != ProvenanceURL
}

const defaultCustomName = "Custom Character"

// Character is one selectable entity. Grid cells hold copies, never references.
type Character struct {
	ID               string     `json:"id"`
	ExternalID       string     `json:"externalId,omitempty"`
	Name             string     `json:"name"`
	ImageURL         string     `json:"imageUrl"`
	OverrideImageURL string     `json:"overrideImageUrl,omitempty"`
	Provenance       Provenance `json:"provenance"`
}

// DisplayImage returns the image to render: the override if set, the primary image otherwise.
func (c Character) DisplayImage() string {
	if c.OverrideImageURL != "" {
		return c.OverrideImageURL
	}
	return c.ImageURL
}

func (c Character) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.ID)
}

// LocalID returns a timestamp-based id for characters that have no catalog id.
func LocalID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// NewUploaded builds a character from an uploaded image. The name defaults to the
// file name without its extension.
func NewUploaded(filename, dataURL string, now time.Time) Character {
	name := strings.TrimSuffix(filename, path.Ext(filename))
	if strings.TrimSpace(name) == "" {
		name = defaultCustomName
	}
	return Character{
		ID:               LocalID(now),
		Name:             name,
		ImageURL:         dataURL,
		OverrideImageURL: dataURL,
		Provenance:       ProvenanceUploaded,
	}
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg"}

// ValidateImageURL checks that raw is an absolute http(s) URL that looks like an image.
func ValidateImageURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidImageURL)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidImageURL, raw)
	}
	lower := strings.ToLower(raw)
	for _, ext := range imageExtensions {
		if strings.Contains(lower, ext) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q must point to an image (jpg, png, gif, webp)", ErrInvalidImageURL, raw)
}

// NewFromURL builds a character from a pasted image URL.
func NewFromURL(name, rawURL string, now time.Time) (Character, error) {
	if err := ValidateImageURL(rawURL); err != nil {
		return Character{}, err
	}
	rawURL = strings.TrimSpace(rawURL)
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultCustomName
	}
	return Character{
		ID:               LocalID(now),
		Name:             name,
		ImageURL:         rawURL,
		OverrideImageURL: rawURL,
		Provenance:       ProvenanceURL,
	}, nil
}

// NewWebSearch builds an image-less placeholder used to search the web gallery by name.
func NewWebSearch(query string, now time.Time) Character {
	return Character{
		ID:         LocalID(now),
		Name:       strings.TrimSpace(query),
		Provenance: ProvenanceWebSearch,
	}
}
