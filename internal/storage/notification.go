package storage

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrNotFound            = errors.New("notification not found")
	ErrConflict            = errors.New("notification already exists")
	ErrInvalidNotification = errors.New("invalid notification")
)

type Kind string

const (
	KindComment Kind = "comment"
	KindMention Kind = "mention"
	KindLike    Kind = "like"
	KindReply   Kind = "reply"
	KindFollow  Kind = "follow"
	KindSystem  Kind = "system"
	KindAdmin   Kind = "admin"
)

func (k Kind) Valid() bool {
	switch k {
	case KindComment, KindMention, KindLike, KindReply, KindFollow, KindSystem, KindAdmin:
		return true
	default:
		return false
	}
}

func (k Kind) DefaultIcon() string {
	switch k {
	case KindComment:
		return "message-circle"
	case KindMention:
		return "at-sign"
	case KindLike:
		return "heart"
	case KindReply:
		return "corner-down-right"
	case KindFollow:
		return "user-plus"
	case KindAdmin:
		return "shield"
	default:
		return "bell"
	}
}

// Category groups kinds the way per-user notification settings do.
func (k Kind) Category() string {
	switch k {
	case KindComment, KindReply:
		return "comments"
	case KindMention:
		return "mentions"
	case KindLike:
		return "likes"
	case KindFollow:
		return "follows"
	default:
		return "system"
	}
}

type Notification struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Kind        Kind           `json:"kind"`
	Title       string         `json:"title"`
	Body        *string        `json:"body,omitempty"`
	ActionURL   *string        `json:"action_url,omitempty"`
	ActionLabel *string        `json:"action_label,omitempty"`
	Icon        *string        `json:"icon,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IsRead      bool           `json:"is_read"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// DisplayIcon is the notification's icon, or its kind's default.
func (n Notification) DisplayIcon() string {
	if n.Icon != nil && *n.Icon != "" {
		return *n.Icon
	}
	return n.Kind.DefaultIcon()
}

// Validate checks the fields a writer must supply. The id is assigned by the
// store and is not checked.
func (n Notification) Validate() error {
	var problems []string
	if n.OwnerID == "" {
		problems = append(problems, "owner_id is required")
	}
	if !n.Kind.Valid() {
		problems = append(problems, fmt.Sprintf("unknown kind %q", n.Kind))
	}
	if strings.TrimSpace(n.Title) == "" {
		problems = append(problems, "title is required")
	}
	if n.IsRead != (n.ReadAt != nil) {
		problems = append(problems, "read_at must be set exactly when is_read is true")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidNotification, strings.Join(problems, "; "))
	}
	return nil
}

// Compare orders notifications newest first, breaking ties by id descending.
func Compare(a, b Notification) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func Less(a, b Notification) bool { return Compare(a, b) < 0 }

func Sort(ns []Notification) { slices.SortFunc(ns, Compare) }

// Patch is a partial update of a notification's read state.
type Patch struct {
	IsRead *bool      `json:"is_read,omitempty"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

func MarkRead(at time.Time) Patch {
	read := true
	return Patch{IsRead: &read, ReadAt: &at}
}

func (p Patch) IsZero() bool { return p.IsRead == nil && p.ReadAt == nil }

// Normalize makes the patch keep read_at consistent with is_read: marking
// read stamps now when no time is given, marking unread clears read_at.
func (p Patch) Normalize(now time.Time) Patch {
	if p.IsRead == nil {
		if p.ReadAt == nil {
			return p
		}
		read := true
		p.IsRead = &read
	}
	if *p.IsRead {
		if p.ReadAt == nil {
			at := now
			p.ReadAt = &at
		}
	} else {
		p.ReadAt = nil
	}
	return p
}

// Apply returns n with the normalized patch applied.
func (p Patch) Apply(n Notification) Notification {
	if p.IsRead == nil {
		return n
	}
	n.IsRead = *p.IsRead
	if n.IsRead {
		at := *p.ReadAt
		n.ReadAt = &at
	} else {
		n.ReadAt = nil
	}
	return n
}

// Match selects notifications for a bulk update.
type Match struct {
	UnreadOnly bool `json:"unread_only,omitempty"`
}

func (m Match) Matches(n Notification) bool {
	return !m.UnreadOnly || !n.IsRead
}
