package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// tokenLookahead is how far ahead of its real expiry an access token is already treated as expired.
const tokenLookahead = 2 * time.Hour

type BackingInstance struct {
	ID                    uuid.UUID  `db:"id"`
	InstanceURL           string     `db:"instance_url"`
	OAuthClientID         string     `db:"oauth_client_id"`
	OAuthClientSecret     string     `db:"oauth_client_secret"`
	Username              string     `db:"username"`
	GrantToken            string     `db:"grant_token"`
	RefreshToken          string     `db:"refresh_token"`
	AccessToken           string     `db:"access_token"`
	AccessTokenExpiration *time.Time `db:"access_token_expiration"`
	CreatedAt             time.Time  `db:"created_at"`
}

// IsExpired reports whether the access token has to be fetched again.
func (i BackingInstance) IsExpired(now time.Time) bool {
	if i.AccessTokenExpiration == nil {
		return true
	}
	return !i.AccessTokenExpiration.After(now.Add(tokenLookahead))
}

type Course struct {
	UUID           uuid.UUID `db:"uuid"`
	CourseID       string    `db:"course_id"`
	Title          string    `db:"title"`
	AuthorName     string    `db:"author_name"`
	Overview       string    `db:"overview"`
	Description    string    `db:"description"`
	ImageURL       string    `db:"image_url"`
	EdxInstanceID  uuid.UUID `db:"edx_instance_id"`
	EdxInstanceURL string    `db:"instance_url"`
	Live           bool      `db:"live"`
	Deleted        bool      `db:"deleted"`
	SyncGeneration int64     `db:"sync_generation"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
	Instructors    []string  `db:"-"`
}

type CourseRepresentation struct {
	UUID        uuid.UUID `json:"uuid"`
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	AuthorName  string    `json:"author_name"`
	Overview    string    `json:"overview"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	EdxInstance string    `json:"edx_instance"`
	Instructors []string  `json:"instructors"`
	Live        bool      `json:"live"`
	Deleted     bool      `json:"deleted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c Course) Representation() CourseRepresentation {
	instructors := c.Instructors
	if instructors == nil {
		instructors = []string{}
	}
	return CourseRepresentation{
		UUID:        c.UUID,
		CourseID:    c.CourseID,
		Title:       c.Title,
		AuthorName:  c.AuthorName,
		Overview:    c.Overview,
		Description: c.Description,
		ImageURL:    c.ImageURL,
		EdxInstance: c.EdxInstanceURL,
		Instructors: instructors,
		Live:        c.Live,
		Deleted:     c.Deleted,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (c Course) WebhookPayload() any {
	return c.Representation()
}

type Module struct {
	UUID        uuid.UUID   `db:"uuid"`
	CourseUUID  uuid.UUID   `db:"course_uuid"`
	Title       string      `db:"title"`
	Subchapters Subchapters `db:"subchapters"`
	LocatorID   string      `db:"locator_id"`
	Order       int         `db:"order_index"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

type ModuleRepresentation struct {
	UUID        uuid.UUID   `json:"uuid"`
	Course      uuid.UUID   `json:"course"`
	Title       string      `json:"title"`
	Subchapters Subchapters `json:"subchapters"`
	LocatorID   string      `json:"locator_id"`
	Order       int         `json:"order"`
}

func (m Module) Representation() ModuleRepresentation {
	subchapters := m.Subchapters
	if subchapters == nil {
		subchapters = Subchapters{}
	}
	return ModuleRepresentation{
		UUID:        m.UUID,
		Course:      m.CourseUUID,
		Title:       m.Title,
		Subchapters: subchapters,
		LocatorID:   m.LocatorID,
		Order:       m.Order,
	}
}

func (m Module) WebhookPayload() any {
	return m.Representation()
}

// Subchapters is an ordered list of chapter titles stored as a JSON array.
type Subchapters []string

func (s Subchapters) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *Subchapters) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*s = Subchapters{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported subchapters type %T", src)
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to decode subchapters: %w", err)
	}
	*s = list
	return nil
}

func (s Subchapters) Equal(other Subchapters) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

type Webhook struct {
	ID        uuid.UUID `db:"id"`
	URL       string    `db:"url"`
	Secret    string    `db:"secret"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
}

type WebhookUpdate struct {
	URL     *string
	Enabled *bool
}

type CourseUpdate struct {
	Title       *string
	AuthorName  *string
	Overview    *string
	Description *string
	ImageURL    *string
	Live        *bool
	Deleted     *bool
	Instructors *[]string
}

type ModuleUpdate struct {
	Title       *string
	Subchapters *Subchapters
	LocatorID   *string
	Order       *int
}
