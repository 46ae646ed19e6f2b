package schema

// PhaseDuration 每个相位段的近似时长（取整到整小时，1-12h）
type PhaseDuration struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Phase      string `gorm:"size:20;index" json:"phase"`
	PhaseCount int    `json:"phase_count"`
	Seconds    int64  `json:"seconds"`
}

// TableName 指定表名
func (PhaseDuration) TableName() string {
	return "phase_durations"
}

// PositionTime 每动物每相位段在每个位置的累计停留秒数。
// 有向管道标签已折叠为无向管道名。
type PositionTime struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	AnimalID   string  `gorm:"size:50;index" json:"animal_id"`
	Phase      string  `gorm:"size:20;index" json:"phase"`
	PhaseCount int     `json:"phase_count"`
	Position   string  `gorm:"size:50;index" json:"position"`
	Seconds    float64 `json:"seconds"`
}

// TableName 指定表名
func (PositionTime) TableName() string {
	return "position_times"
}

// PositionVisits 每动物每相位段到访每个位置的次数
type PositionVisits struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	AnimalID   string `gorm:"size:50;index" json:"animal_id"`
	Phase      string `gorm:"size:20;index" json:"phase"`
	PhaseCount int    `json:"phase_count"`
	Position   string `gorm:"size:50;index" json:"position"`
	Visits     int    `json:"visits"`
}

// TableName 指定表名
func (PositionVisits) TableName() string {
	return "position_visits"
}
