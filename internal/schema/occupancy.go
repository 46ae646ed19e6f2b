package schema

// OccupancyTick 占位栅格的一个采样点（长表：刻度 × 动物 × 笼子）。
// 动物首次被读到之前没有行——未知不等于不在，不能伪造 false。
// 数据量级：千万级/实验，取决于 precision
type OccupancyTick struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Tick       int64  `gorm:"index" json:"tick"` // 刻度时刻，Unix 微秒
	AnimalID   string `gorm:"size:50;index" json:"animal_id"`
	Cage       string `gorm:"size:50;index" json:"cage"`
	IsIn       bool   `json:"is_in"`
	Day        int    `json:"day"`
	Phase      string `gorm:"size:20" json:"phase"`
	PhaseCount int    `json:"phase_count"`
}

// TableName 指定表名
func (OccupancyTick) TableName() string {
	return "occupancy_ticks"
}
