// Package rating 实现 Weng-Lin 风格的 Plackett-Luce 两两对决评分。
// 参考: https://jmlr.org/papers/v12/weng11a.html
package rating

import "math"

// Rating 单个个体的技能估计
type Rating struct {
	Mu    float64 // 技能均值
	Sigma float64 // 不确定度
}

// Model Plackett-Luce 评分模型。更新是路径依赖的，
// 同一批对决以不同顺序输入会得到不同结果。
type Model struct {
	InitialMu    float64 // 新个体的先验均值
	InitialSigma float64 // 新个体的先验不确定度
	Beta         float64 // 场内表现波动
	Kappa        float64 // Sigma 收缩下限，防止塌缩到零
	Tau          float64 // 每场注入的不确定度
	Z            float64 // 序数分 = Mu − Z·Sigma
	LimitSigma   bool    // Sigma 只减不增
	Balance      bool    // 实力悬殊时抑制单场大幅摆动
}

// NewModel 返回默认参数的评分模型
func NewModel() *Model {
	return &Model{
		InitialMu:    25.0,
		InitialSigma: 25.0 / 3.0,
		Beta:         25.0 / 6.0,
		Kappa:        0.0001,
		Tau:          25.0 / 300.0,
		Z:            3.0,
		LimitSigma:   true,
		Balance:      true,
	}
}

// NewRating 返回中性先验评分
func (m *Model) NewRating() Rating {
	return Rating{Mu: m.InitialMu, Sigma: m.InitialSigma}
}

// Ordinal 保守的标量排名分：均值减去 Z 倍不确定度
func (m *Model) Ordinal(r Rating) float64 {
	return r.Mu - m.Z*r.Sigma
}

// RateDuel 按一场对决更新双方评分，胜者均值上升、败者下降，
// 双方不确定度单调收缩。
func (m *Model) RateDuel(winner, loser Rating) (Rating, Rating) {
	wSigmaBefore := winner.Sigma
	lSigmaBefore := loser.Sigma

	// 赛前注入 Tau，表示技能随时间漂移
	winner.Sigma = math.Sqrt(winner.Sigma*winner.Sigma + m.Tau*m.Tau)
	loser.Sigma = math.Sqrt(loser.Sigma*loser.Sigma + m.Tau*m.Tau)

	wVar := winner.Sigma * winner.Sigma
	lVar := loser.Sigma * loser.Sigma
	betaSq := m.Beta * m.Beta

	c := math.Sqrt(wVar + lVar + 2*betaSq)
	expW := math.Exp(winner.Mu / c)
	expL := math.Exp(loser.Mu / c)

	// 名次不低于胜者的选手指数和；败者对自身的商恒为 1，无贡献
	sumQWinner := expW + expL

	// 胜者只受自身项影响
	quotW := expW / sumQWinner
	omegaW := 1 - quotW
	deltaW := quotW * (1 - quotW)

	// 败者受胜者项影响
	quotL := expL / sumQWinner
	omegaL := -quotL
	deltaL := quotL * (1 - quotL)

	omegaW *= wVar / c
	deltaW *= wVar / (c * c) * (winner.Sigma / c)
	omegaL *= lVar / c
	deltaL *= lVar / (c * c) * (loser.Sigma / c)

	// 实力差距越大，单场均值摆动越受抑制
	if m.Balance {
		gap := math.Abs(winner.Mu - loser.Mu)
		damp := 2 / (1 + math.Exp(gap/c))
		omegaW *= damp
		omegaL *= damp
	}

	winner.Mu += omegaW
	winner.Sigma *= math.Sqrt(math.Max(1-deltaW, m.Kappa))
	loser.Mu += omegaL
	loser.Sigma *= math.Sqrt(math.Max(1-deltaL, m.Kappa))

	if m.LimitSigma {
		winner.Sigma = math.Min(winner.Sigma, wSigmaBefore)
		loser.Sigma = math.Min(loser.Sigma, lSigmaBefore)
	}

	return winner, loser
}
