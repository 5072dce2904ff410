package aggregator

import "log/slog"

// Evaluate returns the final value for p. It is a pure function of the base
// value, the mods and p.
func (a *Aggregator) Evaluate(p EvaluateParams) float64 {
	return a.evaluate(a.baseValue, p, MaxChannel)
}

// EvaluateWithBase evaluates the mods over an arbitrary base value.
func (a *Aggregator) EvaluateWithBase(base float64, p EvaluateParams) float64 {
	return a.evaluate(base, p, MaxChannel)
}

// EvaluateToChannel evaluates channels up to and including final.
func (a *Aggregator) EvaluateToChannel(p EvaluateParams, final Channel) float64 {
	return a.evaluate(a.baseValue, p, min(final, MaxChannel))
}

// EvaluateBonus returns the final value minus the base value.
func (a *Aggregator) EvaluateBonus(p EvaluateParams) float64 {
	return a.Evaluate(p) - a.baseValue
}

// EvaluateContribution returns how much the mods of h change the final value.
func (a *Aggregator) EvaluateContribution(p EvaluateParams, h Handle) float64 {
	without := p
	without.IgnoreHandles = append(append([]Handle(nil), p.IgnoreHandles...), h)
	return a.Evaluate(p) - a.Evaluate(without)
}

func (a *Aggregator) evaluate(base float64, p EvaluateParams, last Channel) float64 {
	for ch := Channel(0); ch <= last; ch++ {
		for i := range a.mods[ch][OpOverride] {
			m := &a.mods[ch][OpOverride][i]
			if m.Qualifies(p) {
				return m.Magnitude
			}
		}
	}

	value := base
	for ch := Channel(0); ch <= last; ch++ {
		buckets := &a.mods[ch]
		if len(buckets[OpAdditive]) == 0 && len(buckets[OpMultiplicative]) == 0 && len(buckets[OpDivision]) == 0 {
			continue
		}

		add := 0.0
		for i := range buckets[OpAdditive] {
			if m := &buckets[OpAdditive][i]; m.Qualifies(p) {
				add += m.Magnitude
			}
		}

		mul := 1.0
		for i := range buckets[OpMultiplicative] {
			if m := &buckets[OpMultiplicative][i]; m.Qualifies(p) {
				mul *= m.Magnitude
			}
		}

		div := 1.0
		for i := range buckets[OpDivision] {
			m := &buckets[OpDivision][i]
			if !m.Qualifies(p) {
				continue
			}
			if m.Magnitude == 0 {
				slog.Warn("aggregator: division by zero magnitude skipped", "handle", m.Handle, "channel", ch)
				continue
			}
			div *= m.Magnitude
		}

		value = (value + add) * mul / div
	}
	return value
}

// ReverseEvaluate derives the base value that produces final under p.
// Returns final unchanged when a qualifying override exists or a channel's
// multiplier is zero.
func (a *Aggregator) ReverseEvaluate(final float64, p EvaluateParams) float64 {
	for ch := range NumChannels {
		for i := range a.mods[ch][OpOverride] {
			if a.mods[ch][OpOverride][i].Qualifies(p) {
				return final
			}
		}
	}

	value := final
	for ch := MaxChannel; ch >= 0; ch-- {
		buckets := &a.mods[ch]

		add, mul, div := 0.0, 1.0, 1.0
		for i := range buckets[OpAdditive] {
			if m := &buckets[OpAdditive][i]; m.Qualifies(p) {
				add += m.Magnitude
			}
		}
		for i := range buckets[OpMultiplicative] {
			if m := &buckets[OpMultiplicative][i]; m.Qualifies(p) {
				mul *= m.Magnitude
			}
		}
		for i := range buckets[OpDivision] {
			if m := &buckets[OpDivision][i]; m.Qualifies(p) && m.Magnitude != 0 {
				div *= m.Magnitude
			}
		}

		if mul == 0 {
			return final
		}
		value = value*div/mul - add
	}
	return value
}
