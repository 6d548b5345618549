package app

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ImageStatus string

const (
	StatusActive   ImageStatus = "active"
	StatusDeleted  ImageStatus = "deleted"
	StatusArchived ImageStatus = "archived"
)

// MaxActiveImages is the per-user quota of active images.
const MaxActiveImages = 10

// User represents an account with a one-to-many relationship to Images.
type User struct {
	// Unique user ID.
	ID string `json:"id" gorm:"primaryKey;type:varchar(36)"`

	// User's email address, used to sign in.
	Email string `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`

	// Derived from the email, e.g. test1234_gmail for test1234@gmail.com.
	Username string `json:"username" gorm:"type:varchar(255);not null;uniqueIndex"`

	PasswordHash string `json:"-" gorm:"not null"`

	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Image is the metadata of an image stored in a storage backend.
type Image struct {
	ID string `json:"id" gorm:"primaryKey;type:varchar(36)"`

	// Owner of the image, referenced by id.
	OwnerID string `json:"userId" gorm:"type:varchar(36);not null;index:idx_images_owner_status,priority:1"`

	// The key (object name) of the image in the storage backend.
	StorageKey string `json:"s3Key" gorm:"type:varchar(512);not null"`

	// The original filename as sent by the client.
	Filename string `json:"filename" gorm:"type:varchar(255);not null"`

	// The size of the image in bytes, if the client reported it.
	FileSize *int64 `json:"fileSize,omitempty"`

	// The MIME type of the image (e.g., "image/jpeg", "image/png").
	ContentType *string `json:"contentType,omitempty" gorm:"type:varchar(127)"`

	Status ImageStatus `json:"status" gorm:"type:varchar(16);not null;default:active;index:idx_images_owner_status,priority:2"`

	Labels []Label `json:"labels" gorm:"many2many:image_labels;"`

	UploadedAt time.Time `json:"uploadedAt" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (i *Image) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// HasLabel reports whether the label with id is attached to the image.
func (i *Image) HasLabel(id string) bool {
	for _, l := range i.Labels {
		if l.ID == id {
			return true
		}
	}
	return false
}

// Label is a named, coloured tag shared by many images.
type Label struct {
	ID    string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name  string `json:"name" gorm:"type:varchar(64);not null;uniqueIndex"`
	Color string `json:"color,omitempty" gorm:"type:varchar(7)"`

	CreatedAt time.Time `json:"createdAt"`
}

func (l *Label) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// ListFilter narrows ListForOwner. Labels are matched with AND semantics.
type ListFilter struct {
	Labels []string
	Status ImageStatus
}

// UploadTarget is where a client pushes image bytes before recording metadata.
type UploadTarget struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// NewUpload describes metadata recorded after the bytes were stored.
type NewUpload struct {
	OwnerID     string
	StorageKey  string
	Filename    string
	FileSize    *int64
	ContentType string
}
