package schema

import "time"

// Detection 一次天线读数及其派生注释（位置、相位等）
// 数据量级：百万级/实验
type Detection struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	AnimalID   string  `gorm:"size:50;index" json:"animal_id"`
	Antenna    int     `json:"antenna"`
	Source     string  `gorm:"size:20" json:"source"`        // 读头板名，如 COM3
	Datetime   int64   `gorm:"index" json:"datetime"`        // Unix 时间戳（微秒）
	Timedelta  float64 `json:"timedelta"`                    // 距同一动物上一读数的秒数，首条为 0
	Day        int     `json:"day"`                          // 实验第几天，1 起
	Hour       int     `json:"hour"`                         // 当日小时桶 0-23
	Phase      string  `gorm:"size:20;index" json:"phase"`   // light_phase / dark_phase
	PhaseCount int     `json:"phase_count"`                  // 该动物的相位段序号，1 起
	Position   string  `gorm:"size:50;index" json:"position"` // 笼子/有向管道标签或 undefined
}

// TableName 指定表名
func (Detection) TableName() string {
	return "detections"
}

// Time 还原为指定时区下的时刻
func (d *Detection) Time(loc *time.Location) time.Time {
	return time.UnixMicro(d.Datetime).In(loc)
}

// PaddedStay 相位切分后的停留段。
// 跨相位边界的停留被拆成两段，各自落在一个相位内，时长之和不变。
type PaddedStay struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	AnimalID   string  `gorm:"size:50;index" json:"animal_id"`
	Datetime   int64   `gorm:"index" json:"datetime"` // 停留段结束时刻（微秒）
	Timedelta  float64 `json:"timedelta"`             // 停留段时长（秒）
	Day        int     `json:"day"`
	Hour       int     `json:"hour"`
	Phase      string  `gorm:"size:20;index" json:"phase"`
	PhaseCount int     `json:"phase_count"`
	Position   string  `gorm:"size:50;index" json:"position"`
}

// TableName 指定表名
func (PaddedStay) TableName() string {
	return "padded_stays"
}

// Time 还原为指定时区下的时刻
func (s *PaddedStay) Time(loc *time.Location) time.Time {
	return time.UnixMicro(s.Datetime).In(loc)
}

// Start 停留段开始时刻
func (s *PaddedStay) Start(loc *time.Location) time.Time {
	return s.Time(loc).Add(-time.Duration(s.Timedelta * float64(time.Second)))
}
