package models

import "time"

// Image is the metadata record of an uploaded file.
type Image struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	FileName   string    `json:"fileName" gorm:"size:255;not null"`
	StorageKey string    `json:"storageKey" gorm:"size:512;not null"`
	MimeType   string    `json:"mimeType" gorm:"size:127;not null"`
	Size       int64     `json:"size" gorm:"not null"`
	UploadedBy int64     `json:"uploadedBy" gorm:"index;not null"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	FileURL string `json:"fileUrl,omitempty" gorm:"-"`
}

// TableName returns the database table name for the Image model.
func (Image) TableName() string {
	return "images"
}
