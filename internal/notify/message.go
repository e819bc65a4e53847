package notify

import (
	"fmt"
	"math"
	"strconv"

	"auditwatch/internal/models"
)

var targetNames = map[string]models.LocalizedText{
	"cbe": {EN: "Central Bank of Egypt", AR: "البنك المركزي المصري"},
	"eta": {EN: "Egyptian Tax Authority", AR: "مصلحة الضرائب المصرية"},
	"fra": {EN: "Financial Regulatory Authority", AR: "الهيئة العامة للرقابة المالية"},
	"asa": {EN: "Accountability State Authority", AR: "الجهاز المركزي للمحاسبات"},
	"egx": {EN: "Egyptian Exchange", AR: "البورصة المصرية"},
}

var metricNames = map[models.MetricField]models.LocalizedText{
	models.FieldResponseTime: {EN: "Response time", AR: "زمن الاستجابة"},
	models.FieldErrorRate:    {EN: "Error rate", AR: "معدل الأخطاء"},
	models.FieldAvailability: {EN: "Availability", AR: "نسبة التوفر"},
	models.FieldHealthScore:  {EN: "Health score", AR: "مؤشر الصحة"},
	models.FieldRequestCount: {EN: "Request count", AR: "عدد الطلبات"},
}

var comparatorPhrases = map[models.Comparator]models.LocalizedText{
	models.GreaterThan: {EN: "exceeded", AR: "تجاوز"},
	models.LessThan:    {EN: "dropped below", AR: "انخفض عن"},
	models.Equals:      {EN: "equals", AR: "يساوي"},
	models.NotEquals:   {EN: "differs from", AR: "يختلف عن"},
}

var metricUnits = map[models.MetricField]models.LocalizedText{
	models.FieldResponseTime: {EN: "ms", AR: " مللي ثانية"},
	models.FieldErrorRate:    {EN: "%", AR: "%"},
	models.FieldAvailability: {EN: "%", AR: "%"},
}

// TargetName returns the display name of a monitored target, falling back
// to the id itself.
func TargetName(targetID string) models.LocalizedText {
	return lookup(targetNames, targetID)
}

func lookup[K ~string](table map[K]models.LocalizedText, key K) models.LocalizedText {
	if v, ok := table[key]; ok {
		return v
	}
	return models.LocalizedText{EN: string(key), AR: string(key)}
}

// RenderMessage builds the English and Arabic alert text:
//
//	{target} - {metric} {phrase} {threshold}{unit} (current: {value}{unit})
func RenderMessage(rule models.AlertRule, targetID string, observed float64) models.LocalizedText {
	target := TargetName(targetID)
	metric := lookup(metricNames, rule.MetricField)
	phrase := lookup(comparatorPhrases, rule.Comparator)
	unit := metricUnits[rule.MetricField]

	threshold := formatNumber(rule.Threshold)
	value := formatNumber(observed)

	return models.LocalizedText{
		EN: fmt.Sprintf("%s - %s %s %s%s (current: %s%s)",
			target.EN, metric.EN, phrase.EN, threshold, unit.EN, value, unit.EN),
		AR: fmt.Sprintf("%s - %s %s %s%s (الحالي: %s%s)",
			target.AR, metric.AR, phrase.AR, threshold, unit.AR, value, unit.AR),
	}
}

// formatNumber prints integral values without decimals, others with two
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
