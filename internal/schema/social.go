package schema

// PairwiseMeeting 一对动物在同一笼、同一相位段内的共处汇总。
// AnimalA < AnimalB，无序对只存一行。
type PairwiseMeeting struct {
	ID           int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Phase        string  `gorm:"size:20;index" json:"phase"`
	Day          int     `json:"day"`
	PhaseCount   int     `json:"phase_count"`
	Cage         string  `gorm:"size:50;index" json:"cage"`
	AnimalA      string  `gorm:"size:50;index" json:"animal_a"`
	AnimalB      string  `gorm:"size:50;index" json:"animal_b"`
	TimeTogether float64 `json:"time_together"` // 重叠时长合计（秒）
	Encounters   int     `json:"encounters"`    // 超过阈值的重叠次数
}

// TableName 指定表名
func (PairwiseMeeting) TableName() string {
	return "pairwise_meetings"
}

// TimeAlone 每动物每相位段在每个笼子里独处的时长
type TimeAlone struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Phase      string  `gorm:"size:20;index" json:"phase"`
	Day        int     `json:"day"`
	PhaseCount int     `json:"phase_count"`
	AnimalID   string  `gorm:"size:50;index" json:"animal_id"`
	Cage       string  `gorm:"size:50;index" json:"cage"`
	Seconds    float64 `json:"seconds"`
}

// TableName 指定表名
func (TimeAlone) TableName() string {
	return "time_alone"
}

// Sociability 队内社交性：实际共处比例减去随机期望（DOI:10.7554/eLife.19532）
type Sociability struct {
	ID          int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Day         int     `json:"day"`
	PhaseCount  int     `json:"phase_count"`
	Phase       string  `gorm:"size:20;index" json:"phase"`
	AnimalA     string  `gorm:"size:50;index" json:"animal_a"`
	AnimalB     string  `gorm:"size:50;index" json:"animal_b"`
	Chance      float64 `json:"chance"`      // 各笼时间占比乘积之和
	Together    float64 `json:"together"`    // 实际共处时长占比
	Sociability float64 `json:"sociability"` // together - chance
}

// TableName 指定表名
func (Sociability) TableName() string {
	return "sociability"
}
