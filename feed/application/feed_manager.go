package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dfryer1193/cropfeed/feed/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// FeedManager mediates between post storage and the feed page. It is the
// only writer of the post collection; writes are serialized in process and
// guarded across processes by the store's version check.
type FeedManager struct {
	store     domain.PostStore
	notifier  domain.ContactNotifier
	formatter *Formatter
	nowFn     func() time.Time

	// writeMu serializes read-modify-write cycles.
	writeMu sync.Mutex

	snapMu   sync.RWMutex
	lastGood domain.Snapshot
}

type FeedManagerOption func(*FeedManager)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(nowFn func() time.Time) FeedManagerOption {
	return func(m *FeedManager) {
		m.nowFn = nowFn
	}
}

// WithFormatter replaces the default card formatter.
func WithFormatter(f *Formatter) FeedManagerOption {
	return func(m *FeedManager) {
		m.formatter = f
	}
}

// WithNotifier sets where contact requests are delivered.
func WithNotifier(n domain.ContactNotifier) FeedManagerOption {
	return func(m *FeedManager) {
		m.notifier = n
	}
}

func NewFeedManager(store domain.PostStore, opts ...FeedManagerOption) *FeedManager {
	m := &FeedManager{
		store:     store,
		formatter: defaultFormatter,
		nowFn:     time.Now,
		lastGood:  domain.Snapshot{Posts: []domain.Post{}},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddPost validates fields, prepends a new post and persists the collection.
// Nothing is kept in memory unless the save succeeds.
func (m *FeedManager) AddPost(ctx context.Context, fields domain.PostFields) (*domain.Post, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	snap, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read the current posts: %w", err)
	}

	post, err := domain.NewPost(fields, nextID(snap.Posts, m.nowFn()))
	if err != nil {
		return nil, err
	}

	posts := make([]domain.Post, 0, len(snap.Posts)+1)
	posts = append(posts, *post)
	posts = append(posts, snap.Posts...)

	version, err := m.store.Save(ctx, posts, snap.Version)
	if err != nil {
		log.Error().Err(err).Int64("postID", post.ID).Msg("Failed to save new post")
		return nil, err
	}

	m.remember(domain.Snapshot{Posts: posts, Version: version})

	log.Info().Int64("postID", post.ID).Str("title", post.Title).Str("userID", post.UserID).Msg("Post created")
	return post, nil
}

// maxIDLead bounds how far ahead of the clock an existing id may be and still
// push new ids forward. Anything further out is a corrupt record.
const maxIDLead = 24 * time.Hour

// nextID is the creation time in milliseconds, bumped past every existing id
// so ids stay unique and increasing even within one millisecond or after the
// clock steps backwards.
func nextID(posts []domain.Post, now time.Time) int64 {
	id := now.UnixMilli()
	limit := now.Add(maxIDLead).UnixMilli()
	for _, p := range posts {
		if p.ID > limit {
			log.Warn().Int64("postID", p.ID).Msg("Ignoring implausible post id")
			continue
		}
		if p.ID >= id {
			id = p.ID + 1
		}
	}
	return id
}

// LoadAndRender reads every post and formats the feed. With unchanged
// storage and clock it returns identical views. If storage cannot be read
// the last collection that could be read is rendered instead.
func (m *FeedManager) LoadAndRender(ctx context.Context) FeedView {
	snap := m.current(ctx)
	return m.render(snap.Posts, m.nowFn())
}

// LoadAndRenderFor formats only the posts created by userID, newest first.
// It falls back to the last readable collection the same way LoadAndRender
// does.
func (m *FeedManager) LoadAndRenderFor(ctx context.Context, userID string) FeedView {
	var own []domain.Post
	for _, p := range m.current(ctx).Posts {
		if p.UserID == userID {
			own = append(own, p)
		}
	}
	return m.render(own, m.nowFn())
}

// Refresh re-renders the feed after a mutation.
func (m *FeedManager) Refresh(ctx context.Context) FeedView {
	return m.LoadAndRender(ctx)
}

// Posts returns the current collection, newest first.
func (m *FeedManager) Posts(ctx context.Context) []domain.Post {
	return m.current(ctx).Posts
}

// ContactSeller looks up a post and surfaces its seller details. An unknown
// id is reported through found=false and changes nothing. The returned error
// only reports a failed delivery to the notifier; the contact details are
// valid regardless.
func (m *FeedManager) ContactSeller(ctx context.Context, postID int64, requesterID string) (contact domain.SellerContact, found bool, err error) {
	var post *domain.Post
	for _, p := range m.current(ctx).Posts {
		if p.ID == postID {
			post = &p
			break
		}
	}
	if post == nil {
		log.Debug().Int64("postID", postID).Msg("Contact requested for unknown post")
		return domain.SellerContact{}, false, nil
	}

	contact = domain.SellerContact{
		PostID:   post.ID,
		Title:    post.Title,
		Location: post.Location,
		Price:    post.Price,
	}

	if m.notifier == nil {
		return contact, true, nil
	}

	req := domain.ContactRequest{
		ID:          uuid.NewString(),
		Seller:      contact,
		SellerID:    post.UserID,
		RequesterID: requesterID,
		RequestedAt: m.nowFn().UTC(),
	}
	if err := m.notifier.NotifyContact(ctx, req); err != nil {
		log.Error().Err(err).Int64("postID", postID).Str("requestID", req.ID).Msg("Failed to deliver contact request")
		return contact, true, fmt.Errorf("failed to deliver contact request: %w", err)
	}

	return contact, true, nil
}

func (m *FeedManager) current(ctx context.Context) domain.Snapshot {
	snap, err := m.store.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load posts, using last known good collection")
		m.snapMu.RLock()
		defer m.snapMu.RUnlock()
		return m.lastGood
	}
	m.remember(snap)
	return snap
}

func (m *FeedManager) remember(snap domain.Snapshot) {
	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	m.lastGood = snap
}

func (m *FeedManager) render(posts []domain.Post, now time.Time) FeedView {
	if len(posts) == 0 {
		return m.formatter.EmptyFeed()
	}

	cards := make([]PostCard, 0, len(posts))
	for _, p := range posts {
		card, ok := m.formatOne(p, now)
		if !ok {
			continue
		}
		cards = append(cards, card)
	}
	if len(cards) == 0 {
		return m.formatter.EmptyFeed()
	}
	return FeedView{Cards: cards}
}

// formatOne keeps a single bad record from aborting the rendering pass.
func (m *FeedManager) formatOne(p domain.Post, now time.Time) (card PostCard, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int64("postID", p.ID).Msg("Failed to format post")
			ok = false
		}
	}()
	return m.formatter.FormatPost(p, now), true
}
