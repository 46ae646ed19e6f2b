package schema

// RankEstimate 每只动物的最终技能估计
type RankEstimate struct {
	AnimalID string  `gorm:"primaryKey;size:50" json:"animal_id"`
	Mu       float64 `json:"mu"`
	Sigma    float64 `json:"sigma"`
	Ordinal  float64 `json:"ordinal"` // mu - z*sigma
}

// TableName 指定表名
func (RankEstimate) TableName() string {
	return "rank_estimates"
}

// RankSnapshot 每场比赛之后全体动物的 ordinal 快照，构成排名时间序列
type RankSnapshot struct {
	ID       int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	MatchSeq int     `gorm:"index" json:"match_seq"` // 比赛在时间序中的序号，1 起
	Datetime int64   `gorm:"index" json:"datetime"`  // 比赛时刻，Unix 微秒
	AnimalID string  `gorm:"size:50;index" json:"animal_id"`
	Ordinal  float64 `json:"ordinal"`
}

// TableName 指定表名
func (RankSnapshot) TableName() string {
	return "rank_snapshots"
}

// PhaseEndRank 每个相位段结束时刻的排名：段末前最新快照的序数分。
// 首场比赛之前结束的段没有行，属正常缺失而非错误；
// 之后的段即使段内无比赛也沿用最新快照。
type PhaseEndRank struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Phase      string  `gorm:"size:20;index" json:"phase"`
	Day        int     `json:"day"`
	PhaseCount int     `json:"phase_count"`
	AnimalID   string  `gorm:"size:50;index" json:"animal_id"`
	Ordinal    float64 `json:"ordinal"`
}

// TableName 指定表名
func (PhaseEndRank) TableName() string {
	return "phase_end_ranks"
}
