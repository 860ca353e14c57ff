package classifier

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
)

var (
	modelVersionKeys = []string{"modelVersion", "model_version", "version"}
	overallKeys      = []string{"overallConfidence", "overall_confidence", "confidence"}
	severityKeys     = []string{"severityScore", "severity_score", "severity"}
	severityTextKeys = []string{"severity", "priority"}
	labelSetKeys     = []string{"labels", "categories", "predictions", "departments"}
	labelNameKeys    = []string{"label", "category", "department", "name"}
	labelScoreKeys   = []string{"confidence", "score", "probability"}
	mapScoreKeys     = []string{"confidence", "score"}
)

var severityText = map[string]float64{
	"CRITICAL": 0.95,
	"HIGH":     0.75,
	"MEDIUM":   0.50,
	"LOW":      0.20,
}

var parserPool fastjson.ParserPool

// Parse decodes a classifier response body. Only malformed JSON is an error; any well-formed
// document yields a Success, possibly with no labels.
func Parse(raw []byte) (Success, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	root, err := p.ParseBytes(raw)
	if err != nil {
		return Success{}, fmt.Errorf("parse classifier response: %w", err)
	}
	payload := unwrap(root)

	result := Success{Raw: string(raw)}
	if version, ok := text(payload, modelVersionKeys...); ok {
		result.ModelVersion = version
	}

	result.SeverityScore = number(payload, severityKeys...)
	if result.SeverityScore == nil {
		result.SeverityScore = severityFromText(payload)
	}

	result.Labels = parseLabels(payload)

	overall := number(payload, overallKeys...)
	if isUnset(overall) && len(result.Labels) > 0 {
		var sum float64
		for _, label := range result.Labels {
			if label.Confidence != nil {
				sum += *label.Confidence
			}
		}
		overall = floatPtr(sum / float64(len(result.Labels)))
	}
	if isUnset(overall) {
		overall = topProbability(payload)
	}
	result.OverallConfidence = NormalizeConfidence(overall)

	return result, nil
}

// NormalizeConfidence maps percentages onto [0,1] and clamps negatives to zero.
func NormalizeConfidence(v *float64) *float64 {
	if v == nil {
		return nil
	}
	value := *v
	switch {
	case math.IsNaN(value):
		return nil
	case value > 1:
		value = math.Min(1, value/100)
	case value < 0:
		value = 0
	}
	return &value
}

// unwrap accepts a bare object, a top-level array or an object with a data array, using the first element.
func unwrap(root *fastjson.Value) *fastjson.Value {
	if root.Type() == fastjson.TypeArray {
		if items, _ := root.Array(); len(items) > 0 {
			return items[0]
		}
		return root
	}
	if data := root.Get("data"); data != nil && data.Type() == fastjson.TypeArray {
		if items, _ := data.Array(); len(items) > 0 {
			return items[0]
		}
	}
	return root
}

func parseLabels(payload *fastjson.Value) []Label {
	node := first(payload, labelSetKeys...)
	if node == nil || node.Type() == fastjson.TypeNull {
		return parseClassifierStyle(payload)
	}

	labels := make([]Label, 0)
	switch node.Type() {
	case fastjson.TypeArray:
		items, _ := node.Array()
		for _, item := range items {
			switch item.Type() {
			case fastjson.TypeString:
				labels = append(labels, Label{Name: string(item.GetStringBytes())})
			case fastjson.TypeObject:
				name, ok := text(item, labelNameKeys...)
				if !ok {
					continue
				}
				labels = append(labels, Label{Name: name, Confidence: NormalizeConfidence(number(item, labelScoreKeys...))})
			}
		}
	case fastjson.TypeObject:
		obj, _ := node.Object()
		obj.Visit(func(key []byte, v *fastjson.Value) {
			var score *float64
			if v.Type() == fastjson.TypeNumber {
				score = floatPtr(v.GetFloat64())
			} else {
				score = number(v, mapScoreKeys...)
			}
			labels = append(labels, Label{Name: string(key), Confidence: NormalizeConfidence(score)})
		})
	}
	return labels
}

// parseClassifierStyle reads the pred_label / pred_idx / probs layout of raw model output.
func parseClassifierStyle(payload *fastjson.Value) []Label {
	labels := make([]Label, 0)
	predLabel := payload.Get("pred_label")
	if predLabel == nil || predLabel.Type() == fastjson.TypeNull {
		return labels
	}
	probs := payload.Get("probs")

	if predLabel.Type() == fastjson.TypeArray {
		items, _ := predLabel.Array()
		for i, item := range items {
			name, ok := scalarText(item)
			if !ok {
				continue
			}
			labels = append(labels, Label{Name: name, Confidence: NormalizeConfidence(probabilityAt(probs, i))})
		}
		return labels
	}

	name, ok := scalarText(predLabel)
	if !ok {
		return labels
	}
	var score *float64
	if idx := payload.Get("pred_idx"); idx != nil && idx.Type() == fastjson.TypeNumber {
		if i, err := idx.Int(); err == nil {
			score = probabilityAt(probs, i)
		} else {
			score = topProbability(payload)
		}
	} else {
		score = topProbability(payload)
	}
	return append(labels, Label{Name: name, Confidence: NormalizeConfidence(score)})
}

func severityFromText(payload *fastjson.Value) *float64 {
	raw, ok := text(payload, severityTextKeys...)
	if !ok {
		return nil
	}
	if score, ok := severityText[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return floatPtr(score)
	}
	return nil
}

func topProbability(payload *fastjson.Value) *float64 {
	probs := payload.Get("probs")
	if probs == nil || probs.Type() != fastjson.TypeArray {
		return nil
	}
	items, _ := probs.Array()
	var top *float64
	for _, item := range items {
		value := asFloat(item)
		if value == nil {
			continue
		}
		if top == nil || *value > *top {
			top = value
		}
	}
	return top
}

func probabilityAt(probs *fastjson.Value, index int) *float64 {
	if probs == nil || probs.Type() != fastjson.TypeArray {
		return nil
	}
	items, _ := probs.Array()
	if index < 0 || index >= len(items) {
		return nil
	}
	return asFloat(items[index])
}

func first(v *fastjson.Value, keys ...string) *fastjson.Value {
	for _, key := range keys {
		if found := v.Get(key); found != nil {
			return found
		}
	}
	return nil
}

func text(v *fastjson.Value, keys ...string) (string, bool) {
	for _, key := range keys {
		if found := v.Get(key); found != nil {
			if s, ok := scalarText(found); ok {
				return s, true
			}
		}
	}
	return "", false
}

func number(v *fastjson.Value, keys ...string) *float64 {
	for _, key := range keys {
		if found := v.Get(key); found != nil {
			if value := asFloat(found); value != nil {
				return value
			}
		}
	}
	return nil
}

func scalarText(v *fastjson.Value) (string, bool) {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes()), true
	case fastjson.TypeNumber, fastjson.TypeTrue, fastjson.TypeFalse:
		return v.String(), true
	default:
		return "", false
	}
}

func asFloat(v *fastjson.Value) *float64 {
	switch v.Type() {
	case fastjson.TypeNumber:
		return floatPtr(v.GetFloat64())
	case fastjson.TypeString:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(string(v.GetStringBytes())), 64)
		if err != nil {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

func isUnset(v *float64) bool {
	return v == nil || *v == 0
}

func floatPtr(v float64) *float64 {
	return &v
}
