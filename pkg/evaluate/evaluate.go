// Package evaluate scores predictions against ground-truth labels the way
// detection benchmarks do: greedy confidence-ordered matching per class,
// average precision from the precision envelope, averaged over IoU
// thresholds 0.50:0.05:0.95.
package evaluate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/safevision/safevision/pkg/types"
)

// IoUThresholds are the thresholds mAP50-95 averages over.
var IoUThresholds = []float64{0.5, 0.55, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95}

// Sample is one evaluated image.
type Sample struct {
	Name        string
	Predictions types.DetectionSet
	Truth       types.DetectionSet
}

// ClassMetrics are the scores of one class with ground truth.
type ClassMetrics struct {
	ClassID   int     `json:"class_id"`
	Name      string  `json:"name"`
	Instances int     `json:"instances"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	AP50      float64 `json:"ap50"`
	AP50_95   float64 `json:"ap50_95"`
}

// Metrics summarise a whole evaluation run.
type Metrics struct {
	Images    int            `json:"images"`
	Instances int            `json:"instances"`
	Precision float64        `json:"precision"`
	Recall    float64        `json:"recall"`
	MAP50     float64        `json:"map50"`
	MAP50_95  float64        `json:"map50_95"`
	PerClass  []ClassMetrics `json:"per_class"`
}

type scored struct {
	image int
	det   types.Detection
}

// ClassNamer names class ids. *dataset.Dataset implements it.
type ClassNamer interface {
	ClassName(id int) string
}

// Evaluate scores samples. names labels the per-class rows; with nil names
// the rows show class numbers.
func Evaluate(samples []Sample, names ClassNamer) Metrics {
	m := Metrics{Images: len(samples)}

	preds := map[int][]scored{}
	truth := map[int]int{}
	totalPreds := 0
	for i, s := range samples {
		for _, d := range s.Predictions {
			preds[d.ClassID] = append(preds[d.ClassID], scored{image: i, det: d})
			totalPreds++
		}
		for _, d := range s.Truth {
			truth[d.ClassID]++
			m.Instances++
		}
	}

	classes := make([]int, 0, len(truth))
	for c := range truth {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	tp50 := 0
	for _, c := range preds {
		sort.SliceStable(c, func(i, j int) bool { return c[i].det.Confidence > c[j].det.Confidence })
	}
	for c, list := range preds {
		if truth[c] == 0 {
			continue
		}
		hits := match(samples, c, list, IoUThresholds[0])
		for _, h := range hits {
			if h {
				tp50++
			}
		}
	}

	for _, c := range classes {
		cm := ClassMetrics{ClassID: c, Name: className(names, c), Instances: truth[c]}
		list := preds[c]
		for ti, thr := range IoUThresholds {
			hits := match(samples, c, list, thr)
			precision, recall := curve(hits, truth[c])
			ap := averagePrecision(recall, precision)
			if ti == 0 {
				cm.AP50 = ap
				if n := len(precision); n > 0 {
					cm.Precision = precision[n-1]
					cm.Recall = recall[n-1]
				}
			}
			cm.AP50_95 += ap
		}
		cm.AP50_95 /= float64(len(IoUThresholds))
		m.PerClass = append(m.PerClass, cm)
		m.MAP50 += cm.AP50
		m.MAP50_95 += cm.AP50_95
	}
	if len(classes) > 0 {
		m.MAP50 /= float64(len(classes))
		m.MAP50_95 /= float64(len(classes))
	}
	if totalPreds > 0 {
		m.Precision = float64(tp50) / float64(totalPreds)
	}
	if m.Instances > 0 {
		m.Recall = float64(tp50) / float64(m.Instances)
	}
	return m
}

// match marks each prediction (already in descending confidence) as a true
// or false positive at the given IoU threshold.
func match(samples []Sample, class int, list []scored, threshold float64) []bool {
	used := make(map[[2]int]bool)
	hits := make([]bool, len(list))
	for i, p := range list {
		best, bestIoU := -1, threshold
		for j, gt := range samples[p.image].Truth {
			if gt.ClassID != class || used[[2]int{p.image, j}] {
				continue
			}
			if iou := p.det.Box.IoU(gt.Box); iou >= bestIoU {
				best, bestIoU = j, iou
			}
		}
		if best >= 0 {
			used[[2]int{p.image, best}] = true
			hits[i] = true
		}
	}
	return hits
}

func curve(hits []bool, instances int) (precision, recall []float64) {
	tp, fp := 0, 0
	for _, h := range hits {
		if h {
			tp++
		} else {
			fp++
		}
		precision = append(precision, float64(tp)/float64(tp+fp))
		recall = append(recall, float64(tp)/float64(instances))
	}
	return precision, recall
}

// averagePrecision integrates the monotone precision envelope over recall.
func averagePrecision(recall, precision []float64) float64 {
	if len(recall) == 0 {
		return 0
	}
	mrec := make([]float64, 0, len(recall)+2)
	mpre := make([]float64, 0, len(precision)+2)
	mrec = append(append(append(mrec, 0), recall...), 1)
	mpre = append(append(append(mpre, 1), precision...), 0)

	for i := len(mpre) - 2; i >= 0; i-- {
		mpre[i] = max(mpre[i], mpre[i+1])
	}

	ap := 0.0
	for i := 0; i < len(mrec)-1; i++ {
		if mrec[i+1] != mrec[i] {
			ap += (mrec[i+1] - mrec[i]) * mpre[i+1]
		}
	}
	return ap
}

func className(names ClassNamer, id int) string {
	if names == nil {
		return fmt.Sprint(id)
	}
	return names.ClassName(id)
}

// String renders the metrics as a fixed-width table.
func (m Metrics) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-20s %8s %10s %8s %8s %8s %10s\n", "Class", "Images", "Instances", "P", "R", "mAP50", "mAP50-95")
	fmt.Fprintf(&sb, "%-20s %8d %10d %8.3f %8.3f %8.3f %10.3f\n", "all", m.Images, m.Instances, m.Precision, m.Recall, m.MAP50, m.MAP50_95)
	for _, c := range m.PerClass {
		fmt.Fprintf(&sb, "%-20s %8s %10d %8.3f %8.3f %8.3f %10.3f\n", c.Name, "", c.Instances, c.Precision, c.Recall, c.AP50, c.AP50_95)
	}
	return sb.String()
}
