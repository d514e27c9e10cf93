package forecast

import (
	"strings"

	"github.com/Alias1177/GlucoPredictor/models"
)

var riskAdvice = map[models.RiskCondition]string{
	models.RiskHypoglycemia:  "Your glucose may fall below a safe level. Have 15g of fast-acting carbohydrates and recheck in 15 minutes.",
	models.RiskHyperglycemia: "Your glucose may rise above your target range. Follow your correction plan, drink water and recheck soon.",
}

var directionAdvice = map[models.Direction]string{
	models.DirectionRising:   "Your glucose is trending up. Consider a short walk and avoid extra carbohydrates for now.",
	models.DirectionDropping: "Your glucose is trending down. Keep a snack nearby and watch for symptoms.",
	models.DirectionStable:   "Your glucose looks steady. Keep up your current routine.",
}

var factorHints = map[models.SignalType]string{
	models.SignalGlucoseTrend: "Your recent readings are the main driver of this forecast.",
	models.SignalMedication:   "Active medication is the main driver of this forecast.",
	models.SignalMeal:         "Your last meal is the main driver of this forecast.",
	models.SignalActivity:     "Recent activity is the main driver of this forecast.",
	models.SignalMood:         "Your mood may be affecting your levels.",
	models.SignalLifestyle:    "Sleep and stress patterns are shaping this trend.",
}

// Recommend builds the guidance text from direction, risk and the dominant factor.
// The same inputs always produce the same text.
func Recommend(direction models.Direction, risk *models.RiskAlert, dominant models.SignalType) string {
	var b strings.Builder
	if risk != nil {
		b.WriteString(riskAdvice[risk.Condition])
	} else {
		advice, ok := directionAdvice[direction]
		if !ok {
			advice = directionAdvice[models.DirectionStable]
		}
		b.WriteString(advice)
	}
	if hint, ok := factorHints[dominant]; ok {
		b.WriteString(" ")
		b.WriteString(hint)
	}
	return models.Truncate(b.String(), models.MaxRecommendationLength)
}
