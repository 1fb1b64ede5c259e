package editor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

func TestEncodeIsSparse(t *testing.T) {
	var s Snapshot
	c := char("A")
	s[42] = &c

	b, err := Marshal(s, Meta{Title: "Mine"})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"grid": [{"i":42,"m":"A","n":"Char A","img":"https://img.example/A.jpg","s":"anilist"}],
		"title": "Mine"
	}`, string(b))
}

func TestEncodeEmptyGrid(t *testing.T) {
	b, err := Marshal(Snapshot{}, Meta{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"grid":[]}`, string(b))
}

func TestRoundTripScenario(t *testing.T) {
	var s Snapshot
	rem := Character{
		ID:               "1700000000000",
		Name:             "Rem",
		ImageURL:         "https://img.example/rem.png",
		OverrideImageURL: "https://img.example/rem.png",
		Provenance:       ProvenanceURL,
	}
	s[42] = &rem

	b, err := Marshal(s, Meta{})
	require.NoError(t, err)
	d, err := Decoder{Now: fixedNow}.Decode(b)
	require.NoError(t, err)

	assert.Equal(t, 1, d.Loaded)
	if diff := cmp.Diff(s, d.Cells); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripAnyFill(t *testing.T) {
	provs := []Provenance{ProvenanceAniList, ProvenanceJikan, ProvenanceUploaded, ProvenanceURL, ProvenanceWebSearch, ProvenanceImported}
	for _, n := range []int{1, 7, 50, Size} {
		t.Run(fmt.Sprintf("%d characters", n), func(t *testing.T) {
			var s Snapshot
			for k := range n {
				i := (k * 37) % Size
				c := Character{
					ID:         fmt.Sprintf("id-%d", k),
					Name:       fmt.Sprintf("Name %d \"quoted\" {braces}", k),
					ImageURL:   fmt.Sprintf("https://img.example/%d.jpg", k),
					Provenance: provs[k%len(provs)],
				}
				if k%2 == 0 {
					c.OverrideImageURL = fmt.Sprintf("https://alt.example/%d.png", k)
				}
				if k%3 == 0 {
					c.ExternalID = fmt.Sprint(1000 + k)
				}
				s[i] = &c
			}
			meta := Meta{
				Title:           "Round trip",
				Verdict:         &Verdict{Emoji: "x", EN: VerdictText{Title: "T", Content: "C", Tags: []string{"#a"}}},
				VerdictFeedback: "like",
			}
			b, err := Marshal(s, meta)
			require.NoError(t, err)
			d, err := Decoder{Now: fixedNow}.Decode(b)
			require.NoError(t, err)

			assert.Equal(t, n, d.Loaded)
			assert.Zero(t, d.Skipped)
			if diff := cmp.Diff(s, d.Cells); diff != "" {
				t.Fatalf("cells mismatch:\n%s", diff)
			}
			if diff := cmp.Diff(meta, d.Meta); diff != "" {
				t.Fatalf("meta mismatch:\n%s", diff)
			}
		})
	}
}

func TestDecodeEmptyDocumentFails(t *testing.T) {
	_, err := Decode([]byte(`{"grid":[]}`))
	assert.ErrorIs(t, err, ErrNoValidData)

	// An exported empty grid has nothing to recover either.
	b, err := Marshal(Snapshot{}, Meta{Title: "empty"})
	require.NoError(t, err)
	_, err = Decode(b)
	assert.ErrorIs(t, err, ErrNoValidData)
}

func TestDecodeLegacyFullArray(t *testing.T) {
	in := `[
		{"character": null},
		{"character": {"mal_id": 417, "name": "Lelouch", "images": {"jpg": {"image_url": "https://cdn/l.jpg"}}, "source": "AniList"}},
		{"character": null},
		{"character": {"mal_id": 88, "name": "", "images": {"jpg": {"image_url": ""}}, "customImageUrl": "data:image/jpeg;base64,AAA", "source": "Uploaded"}}
	]`
	d, err := Decoder{Now: fixedNow}.Decode([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Loaded)

	require.NotNil(t, d.Cells[1])
	assert.Equal(t, Character{
		ID:               "417",
		ExternalID:       "417",
		Name:             "Lelouch",
		ImageURL:         "https://cdn/l.jpg",
		OverrideImageURL: "https://cdn/l.jpg",
		Provenance:       ProvenanceAniList,
	}, *d.Cells[1])

	require.NotNil(t, d.Cells[3])
	assert.Equal(t, "Unknown", d.Cells[3].Name)
	assert.Equal(t, "data:image/jpeg;base64,AAA", d.Cells[3].ImageURL)
	assert.Equal(t, ProvenanceUploaded, d.Cells[3].Provenance)
}

func TestDecodeSparseArrayIgnoresPosition(t *testing.T) {
	in := `[{"i": 99, "m": 5, "n": "Last", "img": "a.jpg"}, {"i": 0, "m": 6, "n": "First", "img": "b.jpg", "s": "Web Search"}]`
	d, err := Decode([]byte(in))
	require.NoError(t, err)
	require.NotNil(t, d.Cells[99])
	require.NotNil(t, d.Cells[0])
	assert.Equal(t, "5", d.Cells[99].ID)
	assert.Equal(t, ProvenanceWebSearch, d.Cells[0].Provenance)
	assert.Empty(t, d.Cells[99].Provenance)
}

func TestDecodeMetadata(t *testing.T) {
	in := `{"grid":[{"i":3,"m":"1","n":"A","img":"a.jpg"}],"title":"T1","verdict":{"emoji":"💀","en":{"title":"Edge","content":"c","tags":["#x"]},"th":{"title":"t","content":"c","tags":[]}},"verdictFeedback":"dislike"}`
	d, err := Decode([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, "T1", d.Meta.Title)
	require.NotNil(t, d.Meta.Verdict)
	assert.Equal(t, "Edge", d.Meta.Verdict.EN.Title)
	assert.Equal(t, "dislike", d.Meta.VerdictFeedback)

	// Stored share records keep the title under meta.
	d, err = Decode([]byte(`{"meta":{"title":"Shared"},"grid":[{"i":0,"m":"1","n":"A","img":"a.jpg"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Shared", d.Meta.Title)

	// Metadata is optional.
	d, err = Decode([]byte(`{"grid":[{"i":0,"n":"A"}]}`))
	require.NoError(t, err)
	assert.Equal(t, Meta{}, d.Meta)
}

func TestDecodeBase64(t *testing.T) {
	doc := `{"grid":[{"i":12,"m":"9","n":"Base","img":"b.png"}],"title":"B64"}`
	for name, enc := range map[string]*base64.Encoding{
		"std": base64.StdEncoding,
		"url": base64.RawURLEncoding,
	} {
		t.Run(name, func(t *testing.T) {
			in := enc.EncodeToString([]byte(doc))
			d, err := Decode([]byte("  " + in[:10] + "\n" + in[10:] + " "))
			require.NoError(t, err)
			require.NotNil(t, d.Cells[12])
			assert.Equal(t, "Base", d.Cells[12].Name)
			assert.Equal(t, "B64", d.Meta.Title)
		})
	}
}

func TestDecodeBase64Scavenges(t *testing.T) {
	in := base64.StdEncoding.EncodeToString([]byte(`saved: {"i":4,"n":"Inner","img":"x.jpg"} end`))
	d, err := Decode([]byte(in))
	require.NoError(t, err)
	require.NotNil(t, d.Cells[4])
	assert.Equal(t, "Inner", d.Cells[4].Name)
}

func TestDecodeScavengesPastedText(t *testing.T) {
	in := `Here is my grid!! {"i": 1, "m": 2, "n": "Mikasa", "img": "m.jpg"} and also
	{"i": 2, "n": "Brace } in \"name\"", "img": "z.jpg"} {"unrelated": true} {broken`
	d, err := Decode([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Loaded)
	assert.Equal(t, "Mikasa", d.Cells[1].Name)
	assert.Equal(t, `Brace } in "name"`, d.Cells[2].Name)
}

func TestDecodeScavengesWrappedDocument(t *testing.T) {
	in := `copy this -> {"grid":[{"i":7,"n":"Wrapped","img":"w.jpg"}],"title":"x"} <-`
	d, err := Decode([]byte(in))
	require.NoError(t, err)
	require.NotNil(t, d.Cells[7])
}

func TestDecodeSkipsBadEntries(t *testing.T) {
	in := `{"grid":[
		{"i":0,"n":"Good","img":"g.jpg"},
		{"i":100,"n":"Out","img":"o.jpg"},
		{"i":-1,"n":"Neg","img":"n.jpg"},
		{"i":1},
		{"i":"two","n":"Str"},
		{"n":"No index"},
		"junk"
	]}`
	d, err := Decode([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Loaded)
	assert.Equal(t, 6, d.Skipped)
}

func TestDecodeGeneratesMissingIDs(t *testing.T) {
	d, err := Decoder{Now: fixedNow}.Decode([]byte(`[{"i":5,"n":"A"},{"i":6,"n":"B"}]`))
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", d.Cells[5].ID)
	assert.Equal(t, "1700000000001", d.Cells[6].ID)
}

func TestDecodeNoValidData(t *testing.T) {
	for _, in := range []string{
		"{not json",
		"",
		"   ",
		"hello world",
		`{"unrelated": 1}`,
		`[1, 2, 3]`,
		`"just a string"`,
	} {
		_, err := Decode([]byte(in))
		assert.ErrorIs(t, err, ErrNoValidData, "input %q", in)
	}
}

func TestFlexID(t *testing.T) {
	var e struct {
		A FlexID `json:"a"`
		B FlexID `json:"b"`
		C FlexID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x1","b":12345,"c":null}`), &e))
	assert.Equal(t, FlexID("x1"), e.A)
	assert.Equal(t, FlexID("12345"), e.B)
	assert.Equal(t, FlexID(""), e.C)
	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &e))
}

func TestParseProvenance(t *testing.T) {
	cases := map[string]Provenance{
		"":           "",
		"Uploaded":   ProvenanceUploaded,
		"URL":        ProvenanceURL,
		"Web Search": ProvenanceWebSearch,
		"MAL":        ProvenanceJikan,
		"anilist":    ProvenanceAniList,
		" shared ":   ProvenanceShared,
		"Konachan":   Provenance("Konachan"),
		"Catalog-A":  Provenance("Catalog-A"),
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseProvenance(in), in)
	}
}

func TestRoundTripKeepsUnknownProvenance(t *testing.T) {
	var s Snapshot
	s[3] = &Character{ID: "a", Name: "A", ImageURL: "https://img.example/a.jpg", Provenance: "Catalog-A"}
	s[4] = &Character{ID: "b", Name: "B", ImageURL: "https://img.example/b.jpg"}

	b, err := Marshal(s, Meta{})
	require.NoError(t, err)
	d, err := Decode(b)
	require.NoError(t, err)
	if diff := cmp.Diff(s, d.Cells); diff != "" {
		t.Fatalf("cells mismatch:\n%s", diff)
	}
}

func TestLegacyEntryWithoutSourceIsImported(t *testing.T) {
	d, err := Decode([]byte(`[{"character": {"mal_id": 1, "name": "Rem", "images": {"jpg": {"image_url": "https://cdn/r.jpg"}}}}]`))
	require.NoError(t, err)
	assert.Equal(t, ProvenanceImported, d.Cells[0].Provenance)
}

func TestDecodeLegacyIndexedByPosition(t *testing.T) {
	in := `[{"i": 42, "character": {"mal_id": 3, "name": "Saber", "images": {"jpg": {"image_url": "https://cdn/s.jpg"}}}}]`
	d, err := Decode([]byte(in))
	require.NoError(t, err)
	require.NotNil(t, d.Cells[0])
	assert.Nil(t, d.Cells[42])
	assert.Equal(t, "Saber", d.Cells[0].Name)
}

func TestDecodeRecord(t *testing.T) {
	grid := json.RawMessage(`[
		{"i": 57, "character": {"mal_id": 3, "name": "Saber", "images": {"jpg": {"image_url": "https://cdn/s.jpg"}}, "source": "Shared"}},
		{"i": 2, "m": 9, "n": "Rin", "img": "https://cdn/r.jpg", "s": "anilist"},
		{"character": {"mal_id": 4, "name": "No index"}}
	]`)
	d, err := Decoder{}.DecodeRecord(grid, Meta{Title: "From share"})
	require.NoError(t, err)
	require.NotNil(t, d.Cells[57])
	assert.Nil(t, d.Cells[0])
	assert.Equal(t, "Saber", d.Cells[57].Name)
	assert.Equal(t, ProvenanceShared, d.Cells[57].Provenance)
	assert.Equal(t, "Rin", d.Cells[2].Name)
	assert.Equal(t, 2, d.Loaded)
	assert.Equal(t, 1, d.Skipped)
	assert.Equal(t, "From share", d.Meta.Title)

	_, err = Decoder{}.DecodeRecord(json.RawMessage(`[]`), Meta{})
	assert.ErrorIs(t, err, ErrNoValidData)
	_, err = Decoder{}.DecodeRecord(json.RawMessage(`"nope"`), Meta{})
	assert.ErrorIs(t, err, ErrNoValidData)
}
