package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates that a session could not be located in the backing store.
var ErrNotFound = errors.New("session not found")

// Screen is the view a session currently shows.
type Screen string

const (
	ScreenHome    Screen = "home"
	ScreenLoading Screen = "loading"
	ScreenResult  Screen = "result"
)

// Session is the complete in-memory view state of one user.
type Session struct {
	ID              string    `json:"id"`
	Screen          Screen    `json:"screen"`
	UserImage       string    `json:"userImage,omitempty"`
	Analysis        *Analysis `json:"analysisResult,omitempty"`
	GeneratedImages []string  `json:"generatedImages,omitempty"`
	Error           string    `json:"error,omitempty"`
	RunID           string    `json:"runId,omitempty"`
	// LoadingSince is when the current run entered loading.
	LoadingSince time.Time `json:"loadingSince,omitzero"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Analysis is the structured critique returned by the analysis model.
type Analysis struct {
	Rating                 int               `json:"rating"`
	RatingTitle            string            `json:"ratingTitle"`
	OverallFeedback        string            `json:"overallFeedback"`
	ImprovementSuggestions []Suggestion      `json:"improvementSuggestions"`
	AlternativeOutfit      AlternativeOutfit `json:"alternativeOutfit"`
	ImageGenerationPrompts []string          `json:"imageGenerationPrompts"`
}

// Suggestion pairs an outfit item with advice for it.
type Suggestion struct {
	Item       string `json:"item"`
	Suggestion string `json:"suggestion"`
}

// AlternativeOutfit is the proposed replacement look.
type AlternativeOutfit struct {
	Description  string         `json:"description"`
	ColorPalette []PaletteColor `json:"colorPalette"`
}

// PaletteColor is a named swatch.
type PaletteColor struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// Store defines the persistence behaviors the application relies on.
type Store interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	// UpdateSession loads the session, applies fn and saves the result
	// atomically with respect to other calls on the same store.
	UpdateSession(ctx context.Context, id string, fn func(Session) (Session, error)) (Session, error)
	DeleteSession(ctx context.Context, id string) error
	Close()
}

// Options selects and tunes the backing store.
type Options struct {
	DatabaseURL string
	RedisURL    string
	TTL         time.Duration
}

// NewStore picks PostgreSQL when a database URL is set, Redis when a Redis URL
// is set and the in-memory store otherwise.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	switch {
	case opts.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if err := ensureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &PostgresStore{pool: pool}, nil
	case opts.RedisURL != "":
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisStore(client, opts.TTL), nil
	default:
		return NewInMemoryStore(), nil
	}
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS stylist_sessions (
        id TEXT PRIMARY KEY,
        state JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`)
	if err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}
