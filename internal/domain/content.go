package domain

import "time"

// ToolboxTalk is the safety-training content a subtitle job belongs to. Its
// lifecycle is owned elsewhere; this service only reads it (the CLI may seed it).
type ToolboxTalk struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	TenantID  string    `gorm:"type:text;not null;index" json:"tenant_id"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	IsDeleted bool      `gorm:"default:false" json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for ToolboxTalk.
func (ToolboxTalk) TableName() string {
	return "toolbox_talks"
}
