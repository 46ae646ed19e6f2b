package schema

import "time"

// ChaseMatch 一次追逐事件，胜者把败者逐出管道。
// 一旦写入不可变，按时间顺序构成排名引擎的唯一输入。
type ChaseMatch struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Winner   string `gorm:"size:50;index" json:"winner"`
	Loser    string `gorm:"size:50;index" json:"loser"`
	Datetime int64  `gorm:"index" json:"datetime"` // 败者出管时刻，Unix 微秒
}

// TableName 指定表名
func (ChaseMatch) TableName() string {
	return "chase_matches"
}

// Time 还原为指定时区下的时刻
func (m *ChaseMatch) Time(loc *time.Location) time.Time {
	return time.UnixMicro(m.Datetime).In(loc)
}

// ChaseCount 追逐次数汇总（chaser 追 chased）
type ChaseCount struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Phase      string `gorm:"size:20;index" json:"phase"`
	Day        int    `json:"day"`
	PhaseCount int    `json:"phase_count"`
	Hour       int    `json:"hour"`
	Chaser     string `gorm:"size:50;index" json:"chaser"`
	Chased     string `gorm:"size:50;index" json:"chased"`
	Count      int    `json:"count"`
}

// TableName 指定表名
func (ChaseCount) TableName() string {
	return "chase_counts"
}
