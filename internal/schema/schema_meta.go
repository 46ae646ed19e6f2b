package schema

import "time"

// SchemaMeta 结果库的 schema 版本号，单行（ID=1）。
// 结果表内容整表可重算，表结构升级却不可逆，
// 版本号高于程序支持范围时拒绝打开而不是盲目 AutoMigrate。
type SchemaMeta struct {
	ID            int       `gorm:"primaryKey"`
	SchemaVersion int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (SchemaMeta) TableName() string {
	return "schema_meta"
}
