package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AIModel is a marketplace listing for a hosted model.
type AIModel struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID       uuid.UUID       `gorm:"column:owner_id;type:uuid;not null;index"`
	Name          string          `gorm:"column:name;not null"`
	Description   string          `gorm:"column:description;not null;default:''"`
	ModelType     string          `gorm:"column:model_type;not null"`
	Framework     string          `gorm:"column:framework;not null"`
	Version       string          `gorm:"column:version;not null"`
	Metadata      json.RawMessage `gorm:"column:metadata;type:jsonb"`
	RepositoryURL *string         `gorm:"column:repository_url"`
	DownloadCount int             `gorm:"column:download_count;not null;default:0"`
	IsPublic      bool            `gorm:"column:is_public;not null;default:false"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
