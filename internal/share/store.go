// Package share persists shared grids in Redis and maintains the community feed.
package share

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/bodul/waifu100/internal/editor"
)

var (
	ErrNotFound       = errors.New("share not found")
	ErrEmptyGrid      = errors.New("grid has no valid characters")
	ErrInvalidID      = errors.New("invalid share id")
	ErrInvalidVerdict = errors.New("invalid verdict")

	errIDTaken = errors.New("share id taken")
)

const (
	idLength     = 10
	idAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
	defaultTitle = "Waifu100 Grid"
	maxIDRetries = 3
)

// Meta is the summary stored next to every shared grid.
type Meta struct {
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	HasImage  bool      `json:"hasImage"`
	ImageURL  string    `json:"imageUrl,omitempty"`
}

// Record is a stored share. Grid is kept raw: older records use the
// {i, character} shape, newer ones the sparse entry shape. Both load through
// editor.Decoder.
type Record struct {
	Meta            Meta            `json:"meta"`
	Grid            json.RawMessage `json:"grid"`
	Verdict         *editor.Verdict `json:"verdict,omitempty"`
	VerdictFeedback string          `json:"verdictFeedback,omitempty"`
}

// DocumentMeta returns the record's metadata in the editor's form.
func (r *Record) DocumentMeta() editor.Meta {
	return editor.Meta{Title: r.Meta.Title, Verdict: r.Verdict, VerdictFeedback: r.VerdictFeedback}
}

// CreateRequest is a grid to share.
type CreateRequest struct {
	Grid    []editor.Entry
	Title   string
	Image   string // optional PNG data URL
	Verdict *editor.Verdict
	Publish bool // also add to the community feed
}

// Store holds shares in Redis.
type Store struct {
	rdb      *redis.Client
	prefix   string
	feedSize int
	logger   *zap.Logger
	now      func() time.Time
	newID    func() (string, error)
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix (default "waifu100").
func WithPrefix(p string) Option { return func(s *Store) { s.prefix = p } }

// WithFeedSize sets how many entries Feed returns.
func WithFeedSize(n int) Option { return func(s *Store) { s.feedSize = n } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = l } }

// WithClock sets the clock used for creation times.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// NewStore creates a store over rdb.
func NewStore(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{
		rdb:      rdb,
		prefix:   "waifu100",
		feedSize: 50,
		logger:   zap.NewNop(),
		now:      time.Now,
		newID:    generateID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) shareKey(id string) string { return s.prefix + ":share:" + id }
func (s *Store) imageKey(id string) string { return s.prefix + ":share:" + id + ":image" }
func (s *Store) feedKey() string           { return s.prefix + ":feed" }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Create stores a new share and returns its id. Entries without an id, a name
// or a valid index are dropped. An image that fails to decode is dropped with
// a warning; the share is still saved.
func (s *Store) Create(ctx context.Context, req CreateRequest) (string, error) {
	entries := make([]editor.Entry, 0, len(req.Grid))
	for _, e := range req.Grid {
		if e.Index < 0 || e.Index >= editor.Size || e.ID == "" || strings.TrimSpace(e.Name) == "" {
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return "", ErrEmptyGrid
	}
	grid, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode grid: %w", err)
	}

	var image []byte
	if req.Image != "" {
		if image, err = decodeDataURL(req.Image); err != nil {
			s.logger.Warn("dropping share image", zap.Error(err))
			image = nil
		}
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultTitle
	}
	rec := Record{
		Meta:    Meta{Title: title, CreatedAt: s.now().UTC(), HasImage: image != nil},
		Grid:    grid,
		Verdict: req.Verdict,
	}

	for range maxIDRetries {
		id, err := s.newID()
		if err != nil {
			return "", err
		}
		if image != nil {
			rec.Meta.ImageURL = "/api/share/" + id + "/image"
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return "", fmt.Errorf("encode share: %w", err)
		}

		// The record, its image and its feed entry are written in one MULTI.
		key := s.shareKey(id)
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return errIDTaken
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				if image != nil {
					pipe.Set(ctx, s.imageKey(id), image, 0)
				}
				if req.Publish {
					pipe.ZAdd(ctx, s.feedKey(), &redis.Z{Score: float64(rec.Meta.CreatedAt.UnixMilli()), Member: id})
				}
				return nil
			})
			return err
		}, key)
		if errors.Is(err, errIDTaken) || errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("save share: %w", err)
		}

		s.logger.Info("share created",
			zap.String("id", id),
			zap.Int("characters", len(entries)),
			zap.Bool("image", image != nil),
			zap.Bool("published", req.Publish))
		return id, nil
	}
	return "", fmt.Errorf("allocate share id: %d collisions", maxIDRetries)
}

// Get returns a share by id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if !validID(id) {
		return nil, ErrInvalidID
	}
	data, err := s.rdb.Get(ctx, s.shareKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get share %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode share %s: %w", id, err)
	}
	return &rec, nil
}

// Image returns the PNG stored with a share.
func (s *Store) Image(ctx context.Context, id string) ([]byte, error) {
	if !validID(id) {
		return nil, ErrInvalidID
	}
	data, err := s.rdb.Get(ctx, s.imageKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get share image %s: %w", id, err)
	}
	return data, nil
}

// UpdateVerdict attaches a verdict to an existing share and clears any
// feedback given on the previous one.
func (s *Store) UpdateVerdict(ctx context.Context, id string, v *editor.Verdict) error {
	if v == nil || (v.Emoji == "" && v.EN.Title == "" && v.TH.Title == "") {
		return ErrInvalidVerdict
	}
	return s.patch(ctx, id, func(rec *Record) {
		rec.Verdict = v
		rec.VerdictFeedback = ""
	})
}

// UpdateFeedback records the reaction to a share's verdict: "like",
// "dislike" or "" to clear.
func (s *Store) UpdateFeedback(ctx context.Context, id, feedback string) error {
	switch feedback {
	case "", "like", "dislike":
	default:
		return fmt.Errorf("unknown feedback %q", feedback)
	}
	return s.patch(ctx, id, func(rec *Record) { rec.VerdictFeedback = feedback })
}

// patch applies fn to a stored record inside a WATCH transaction.
func (s *Store) patch(ctx context.Context, id string, fn func(*Record)) error {
	if !validID(id) {
		return ErrInvalidID
	}
	key := s.shareKey(id)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode share %s: %w", id, err)
		}
		fn(&rec)
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("patch share %s: %w", id, err)
	}
	return err
}

func generateID() (string, error) {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	for i := range b {
		b[i] = idAlphabet[int(b[i])&63]
	}
	return string(b), nil
}

func validID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		if !strings.ContainsRune(idAlphabet, r) {
			return false
		}
	}
	return true
}

// decodeDataURL accepts "data:image/png;base64,..." or bare base64.
func decodeDataURL(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
			return nil, fmt.Errorf("image is not a base64 data URL")
		}
		s = s[comma+1:]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	return b, nil
}
