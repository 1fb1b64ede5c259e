package editor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// VerdictText is one language of a grid analysis.
type VerdictText struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// Verdict is the AI analysis attached to a grid.
type Verdict struct {
	Emoji string      `json:"emoji"`
	EN    VerdictText `json:"en"`
	TH    VerdictText `json:"th"`
}

// Meta is the optional metadata carried next to a serialized grid.
type Meta struct {
	Title           string
	Verdict         *Verdict
	VerdictFeedback string
}

// FlexID accepts both JSON strings and numbers. Older saves store numeric ids.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// Entry is one occupied cell in the sparse encoding.
type Entry struct {
	Index      int        `json:"i"`
	ID         FlexID     `json:"m"`
	ExternalID string     `json:"x,omitempty"`
	Name       string     `json:"n"`
	ImageURL   string     `json:"img"`
	Override   string     `json:"c_img,omitempty"`
	Provenance Provenance `json:"s,omitempty"`
}

// Document is the serialized grid: sparse entries plus metadata.
type Document struct {
	Grid            []Entry  `json:"grid"`
	Title           string   `json:"title,omitempty"`
	Verdict         *Verdict `json:"verdict,omitempty"`
	VerdictFeedback string   `json:"verdictFeedback,omitempty"`
}

// Meta returns the document's metadata.
func (d Document) Meta() Meta {
	return Meta{Title: d.Title, Verdict: d.Verdict, VerdictFeedback: d.VerdictFeedback}
}

// Encode emits one entry per occupied cell in index order. Empty cells are omitted.
func Encode(s Snapshot, meta Meta) Document {
	doc := Document{
		Grid:            make([]Entry, 0, s.Count()),
		Title:           meta.Title,
		Verdict:         meta.Verdict,
		VerdictFeedback: meta.VerdictFeedback,
	}
	for i, c := range s {
		if c == nil {
			continue
		}
		doc.Grid = append(doc.Grid, Entry{
			Index:      i,
			ID:         FlexID(c.ID),
			ExternalID: c.ExternalID,
			Name:       c.Name,
			ImageURL:   c.ImageURL,
			Override:   c.OverrideImageURL,
			Provenance: c.Provenance,
		})
	}
	return doc
}

// Marshal encodes s as JSON.
func Marshal(s Snapshot, meta Meta) ([]byte, error) {
	return json.Marshal(Encode(s, meta))
}

// ParseProvenance maps a stored source tag, including older display names, to a
// Provenance. Known tags match case-insensitively; anything else is kept as written.
func ParseProvenance(s string) Provenance {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return ""
	case "url", "pasted url", string(ProvenanceURL):
		return ProvenanceURL
	case "web search", "websearch", string(ProvenanceWebSearch):
		return ProvenanceWebSearch
	case "mal", "myanimelist", string(ProvenanceJikan):
		return ProvenanceJikan
	case string(ProvenanceAniList):
		return ProvenanceAniList
	case string(ProvenanceUploaded):
		return ProvenanceUploaded
	case string(ProvenanceImported):
		return ProvenanceImported
	case string(ProvenanceShared):
		return ProvenanceShared
	default:
		return Provenance(s)
	}
}

// Decoded is the result of a successful decode.
type Decoded struct {
	Cells   Snapshot
	Loaded  int
	Skipped int
	Meta    Meta
}

// Decoder reads every known grid encoding. Now stamps ids for entries that
// carry none; it defaults to time.Now.
type Decoder struct {
	Now func() time.Time
}

// Decode reads input, trying in order: plain JSON, base64-wrapped JSON, and
// scavenging brace-balanced objects out of surrounding text. It fails with
// ErrNoValidData when no usable entry is found.
func (d Decoder) Decode(input []byte) (*Decoded, error) {
	text := strings.TrimSpace(string(input))

	items, meta, ok := parseDirect(text)
	if !ok {
		if decoded, err := decodeBase64(text); err == nil {
			items, meta, ok = parseDirect(decoded)
			if !ok {
				items = scavenge(decoded)
			}
		} else {
			items = scavenge(text)
		}
	}
	if len(items) == 0 {
		return nil, ErrNoValidData
	}
	return d.decodeItems(items, meta, false)
}

// DecodeRecord reads the grid array of a stored share record. Unlike pasted
// input, old-shape entries in a record carry their cell in "i".
func (d Decoder) DecodeRecord(grid json.RawMessage, meta Meta) (*Decoded, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(grid, &items); err != nil || len(items) == 0 {
		return nil, ErrNoValidData
	}
	return d.decodeItems(items, meta, true)
}

func (d Decoder) decodeItems(items []json.RawMessage, meta Meta, indexed bool) (*Decoded, error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	base := now().UnixMilli()

	out := &Decoded{Meta: meta}
	for pos, raw := range items {
		idx, c, ok := decodeItem(raw, pos, indexed)
		if !ok {
			out.Skipped++
			continue
		}
		if c.ID == "" {
			c.ID = strconv.FormatInt(base+int64(pos), 10)
		}
		out.Cells[idx] = &c
	}
	out.Loaded = out.Cells.Count()
	if out.Loaded == 0 {
		return nil, fmt.Errorf("%w: %d entries skipped", ErrNoValidData, out.Skipped)
	}
	return out, nil
}

// Decode reads input with the default clock.
func Decode(input []byte) (*Decoded, error) {
	return Decoder{}.Decode(input)
}

// parseDirect handles {grid: [...], ...meta}, a bare array, or a single object.
func parseDirect(text string) ([]json.RawMessage, Meta, bool) {
	if text == "" {
		return nil, Meta{}, false
	}
	switch text[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(text), &items); err != nil {
			return nil, Meta{}, false
		}
		return items, Meta{}, true
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, Meta{}, false
		}
		if raw, ok := obj["grid"]; ok {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err == nil {
				return items, extractMeta(obj), true
			}
		}
		return []json.RawMessage{json.RawMessage(text)}, Meta{}, true
	}
	return nil, Meta{}, false
}

func extractMeta(obj map[string]json.RawMessage) Meta {
	var m Meta
	if raw, ok := obj["title"]; ok {
		_ = json.Unmarshal(raw, &m.Title)
	}
	if m.Title == "" {
		if raw, ok := obj["meta"]; ok {
			var nested struct {
				Title string `json:"title"`
			}
			if json.Unmarshal(raw, &nested) == nil {
				m.Title = nested.Title
			}
		}
	}
	if raw, ok := obj["verdict"]; ok {
		var v Verdict
		if json.Unmarshal(raw, &v) == nil && (v.Emoji != "" || v.EN.Title != "" || v.TH.Title != "") {
			m.Verdict = &v
		}
	}
	if raw, ok := obj["verdictFeedback"]; ok {
		_ = json.Unmarshal(raw, &m.VerdictFeedback)
	}
	return m
}

func decodeBase64(text string) (string, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	if compact == "" {
		return "", fmt.Errorf("empty input")
	}
	var err error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		var b []byte
		if b, err = enc.DecodeString(compact); err == nil {
			return strings.TrimSpace(string(b)), nil
		}
	}
	return "", err
}

type legacyCharacter struct {
	MalID   FlexID `json:"mal_id"`
	JikanID FlexID `json:"jikan_id"`
	Name    string `json:"name"`
	Images  struct {
		JPG struct {
			ImageURL string `json:"image_url"`
		} `json:"jpg"`
	} `json:"images"`
	CustomImageURL string `json:"customImageUrl"`
	Source         string `json:"source"`
}

// decodeItem classifies one entry. Entries carrying "character" are the old
// full-array encoding indexed by position, or by "i" when indexed is set;
// entries with a numeric "i" are sparse.
func decodeItem(raw json.RawMessage, pos int, indexed bool) (int, Character, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, Character{}, false
	}

	if rawChar, ok := obj["character"]; ok && !bytes.Equal(bytes.TrimSpace(rawChar), []byte("null")) {
		var lc legacyCharacter
		if err := json.Unmarshal(rawChar, &lc); err != nil {
			return 0, Character{}, false
		}
		image := lc.Images.JPG.ImageURL
		if image == "" {
			image = lc.CustomImageURL
		}
		override := lc.CustomImageURL
		if override == "" {
			override = image
		}
		external := string(lc.JikanID)
		if external == "" {
			external = string(lc.MalID)
		}
		prov := ParseProvenance(lc.Source)
		if prov == "" {
			prov = ProvenanceImported
		}
		c := Character{
			ID:               string(lc.MalID),
			ExternalID:       external,
			Name:             lc.Name,
			ImageURL:         image,
			OverrideImageURL: override,
			Provenance:       prov,
		}
		if indexed {
			idx, ok := explicitIndex(obj)
			if !ok {
				return 0, Character{}, false
			}
			pos = idx
		}
		return finish(pos, c)
	}

	idx, ok := explicitIndex(obj)
	if !ok {
		return 0, Character{}, false
	}
	var e Entry
	e.Index = idx
	delete(obj, "i")
	rest, _ := json.Marshal(obj)
	if err := json.Unmarshal(rest, &e); err != nil {
		return 0, Character{}, false
	}
	image := e.ImageURL
	if image == "" {
		image = e.Override
	}
	c := Character{
		ID:               string(e.ID),
		ExternalID:       e.ExternalID,
		Name:             e.Name,
		ImageURL:         image,
		OverrideImageURL: e.Override,
		Provenance:       ParseProvenance(string(e.Provenance)),
	}
	return finish(e.Index, c)
}

func explicitIndex(obj map[string]json.RawMessage) (int, bool) {
	raw, ok := obj["i"]
	if !ok {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	idx, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(idx), true
}

func finish(idx int, c Character) (int, Character, bool) {
	if idx < 0 || idx >= Size {
		return 0, Character{}, false
	}
	if c.Name == "" && c.DisplayImage() == "" {
		return 0, Character{}, false
	}
	if c.Name == "" {
		c.Name = "Unknown"
	}
	return idx, c, true
}
