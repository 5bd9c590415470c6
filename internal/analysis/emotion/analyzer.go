package emotion

import (
	"math"
	"strings"
)

// Label 表示检测器可以输出的表情标签。
type Label string

const (
	Neutral   Label = "neutral"
	Happy     Label = "happy"
	Sad       Label = "sad"
	Angry     Label = "angry"
	Fearful   Label = "fearful"
	Disgusted Label = "disgusted"
	Surprised Label = "surprised"
)

// Labels 返回全部标签，顺序固定，用于分布统计与图表。
func Labels() []Label {
	return []Label{Happy, Sad, Angry, Fearful, Disgusted, Surprised, Neutral}
}

// ParseLabel 解析检测器给出的标签，大小写与首尾空白不敏感。
func ParseLabel(raw string) (Label, bool) {
	switch Label(strings.ToLower(strings.TrimSpace(raw))) {
	case Neutral:
		return Neutral, true
	case Happy:
		return Happy, true
	case Sad:
		return Sad, true
	case Angry:
		return Angry, true
	case Fearful:
		return Fearful, true
	case Disgusted:
		return Disgusted, true
	case Surprised:
		return Surprised, true
	default:
		return "", false
	}
}

// Polarity 返回标签对应的三态分值：积极 1、消极 -1、其余 0。
func Polarity(label Label) float64 {
	switch label {
	case Happy, Surprised:
		return 1
	case Sad, Angry, Disgusted, Fearful:
		return -1
	default:
		return 0
	}
}

// 分桶阈值，作用于规范化后的极性分值 [-1, 1]。
// 三态输入 {-1,0,1} 与置信度输入 0.4/0.6 阈值换算后都落在同一组边界上。
const (
	UpperThreshold = 0.2
	LowerThreshold = -0.2
)

// Bucket 是分值的三向归类。
type Bucket string

const (
	BucketPositive Bucket = "positive"
	BucketNeutral  Bucket = "neutral"
	BucketNegative Bucket = "negative"
)

// Classify 按阈值把分值归入积极、中性或消极。
func Classify(score float64) Bucket {
	switch {
	case score > UpperThreshold:
		return BucketPositive
	case score < LowerThreshold:
		return BucketNegative
	default:
		return BucketNeutral
	}
}

// Convention 描述外部输入分值的约定。
type Convention string

const (
	// ConventionPolarity 三态或连续极性，范围 [-1, 1]。
	ConventionPolarity Convention = "polarity"
	// ConventionConfidence 置信度，范围 [0, 1]。
	ConventionConfidence Convention = "confidence"
)

// ParseConvention 解析配置中的分值约定。
func ParseConvention(raw string) (Convention, bool) {
	switch Convention(strings.ToLower(strings.TrimSpace(raw))) {
	case ConventionPolarity:
		return ConventionPolarity, true
	case ConventionConfidence:
		return ConventionConfidence, true
	default:
		return "", false
	}
}

// ToCanonical 把外部分值换算为规范极性分值。NaN 与 Inf 视为 0。
func (c Convention) ToCanonical(score float64) float64 {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	if c == ConventionConfidence {
		score = clamp(score, 0, 1)*2 - 1
	}
	return clamp(score, -1, 1)
}

// FromCanonical 把规范分值换算回该约定下的表示，用于展示。
func (c Convention) FromCanonical(score float64) float64 {
	if c == ConventionConfidence {
		return (clamp(score, -1, 1) + 1) / 2
	}
	return score
}

// Dominant 返回出现次数最多的标签；次数相同时取最先出现的标签。
// 空输入返回 false。
func Dominant(labels []Label) (Label, bool) {
	if len(labels) == 0 {
		return "", false
	}

	counts := make(map[Label]int, len(labels))
	order := make([]Label, 0, len(labels))
	for _, label := range labels {
		if _, seen := counts[label]; !seen {
			order = append(order, label)
		}
		counts[label]++
	}

	best := order[0]
	for _, label := range order[1:] {
		if counts[label] > counts[best] {
			best = label
		}
	}
	return best, true
}

// Count 是某个标签的出现次数。
type Count struct {
	Label Label `json:"emotion"`
	Count int   `json:"count"`
}

// Distribution 统计各标签出现次数，按首次出现顺序返回。
func Distribution(labels []Label) []Count {
	index := make(map[Label]int, len(labels))
	out := make([]Count, 0)
	for _, label := range labels {
		i, ok := index[label]
		if !ok {
			index[label] = len(out)
			out = append(out, Count{Label: label})
			i = len(out) - 1
		}
		out[i].Count++
	}
	return out
}

// Mean 返回平均值，空输入为 0。
func Mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
