package community

import (
	"fmt"
	"io"
	"time"
)

// Artifact is one uploaded file tracked by the document store.
type Artifact struct {
	ID          string    `bson:"_id" json:"id"`
	Key         string    `bson:"key" json:"key"`
	Filename    string    `bson:"filename" json:"filename"`
	ContentType string    `bson:"contentType" json:"contentType"`
	Size        int64     `bson:"size,omitempty" json:"size,omitempty"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

func (a *Artifact) GetID() string   { return a.ID }
func (a *Artifact) SetID(id string) { a.ID = id }

// Media is a file attached to a Content, addressed by MediaID within it.
type Media struct {
	MediaID     string `bson:"media_id" json:"media_id"`
	Key         string `bson:"key" json:"key"`
	Filename    string `bson:"filename" json:"filename"`
	ContentType string `bson:"contentType" json:"contentType"`
}

// Content is a community post owning zero or more media entries.
type Content struct {
	ID          string    `bson:"_id" json:"id"`
	CommunityID string    `bson:"communityId,omitempty" json:"communityId,omitempty"`
	Title       string    `bson:"title" json:"title"`
	Body        string    `bson:"body,omitempty" json:"body,omitempty"`
	Media       []Media   `bson:"media" json:"media"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (c *Content) GetID() string   { return c.ID }
func (c *Content) SetID(id string) { c.ID = id }

// FindMedia returns the first media entry with the given id.
func (c *Content) FindMedia(mediaID string) (Media, bool) {
	for _, m := range c.Media {
		if m.MediaID == mediaID {
			return m, true
		}
	}
	return Media{}, false
}

// Validate rejects media entries that share a media_id.
func (c *Content) Validate() error {
	seen := make(map[string]struct{}, len(c.Media))
	for _, m := range c.Media {
		if _, dup := seen[m.MediaID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateMedia, m.MediaID)
		}
		seen[m.MediaID] = struct{}{}
	}
	return nil
}

// Community is a group managed through the admin panel.
type Community struct {
	ID          string    `bson:"_id" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Slug        string    `bson:"slug" json:"slug"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

func (c *Community) GetID() string   { return c.ID }
func (c *Community) SetID(id string) { c.ID = id }

// Member belongs to one community.
type Member struct {
	ID          string    `bson:"_id" json:"id"`
	CommunityID string    `bson:"communityId" json:"communityId"`
	Name        string    `bson:"name" json:"name"`
	Email       string    `bson:"email" json:"email"`
	Role        string    `bson:"role,omitempty" json:"role,omitempty"`
	JoinedAt    time.Time `bson:"joinedAt" json:"joinedAt"`
}

func (m *Member) GetID() string   { return m.ID }
func (m *Member) SetID(id string) { m.ID = id }

// Promo is a time-boxed promotion, optionally illustrated by an artifact.
type Promo struct {
	ID              string    `bson:"_id" json:"id"`
	CommunityID     string    `bson:"communityId" json:"communityId"`
	Title           string    `bson:"title" json:"title"`
	Code            string    `bson:"code,omitempty" json:"code,omitempty"`
	DiscountPercent float64   `bson:"discountPercent,omitempty" json:"discountPercent,omitempty"`
	StartsAt        time.Time `bson:"startsAt" json:"startsAt"`
	EndsAt          time.Time `bson:"endsAt" json:"endsAt"`
	ArtifactID      string    `bson:"artifactId,omitempty" json:"artifactId,omitempty"`
}

func (p *Promo) GetID() string   { return p.ID }
func (p *Promo) SetID(id string) { p.ID = id }

// ObjectMeta describes a stored object without its body.
type ObjectMeta struct {
	Key           string
	ContentType   string
	ContentLength int64
	UpdatedAt     time.Time
	ETag          string
	Metadata      map[string]string
}

// ObjectStream is a forward-only view over a stored object's bytes.
// Body must be closed by the caller; a second read of the same key needs a
// new stream.
type ObjectStream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Close releases the underlying connection or buffer.
func (s *ObjectStream) Close() error {
	if s == nil || s.Body == nil {
		return nil
	}
	return s.Body.Close()
}

// SignedURL is a time-boxed grant for one operation on one key.
type SignedURL struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Key         string            `json:"key"`
	ContentType string            `json:"contentType,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	ExpiresIn   int               `json:"expiresIn"`
	ExpiresAt   time.Time         `json:"expiresAt"`
}

// SignedGetURLRequest asks for a download grant.
type SignedGetURLRequest struct {
	Key string
	// ExpiresInSeconds overrides the configured default when set.
	ExpiresInSeconds *int
	// Filename, when set, is returned as an attachment disposition.
	Filename string
}

// SignedPutURLRequest asks for an upload grant bound to a content type.
type SignedPutURLRequest struct {
	Key              string
	ContentType      string
	Metadata         map[string]string
	ExpiresInSeconds *int
}

// Seconds is a helper for optional expiry fields.
func Seconds(n int) *int {
	return &n
}
