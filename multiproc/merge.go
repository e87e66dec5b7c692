package multiproc

import (
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"
)

// merge 合并多个进程的快照
//
// 同名同标签的计数器、未分类指标与仪表盘取和；直方图的 count/sum 与各桶累计值取和；
// 摘要只合并 count/sum。exemplar 与创建时间不参与合并。
// 同名指标族类型不一致时保留最先出现的类型，其余忽略。
func merge(snapshots [][]*dto.MetricFamily) []*dto.MetricFamily {
	families := make(map[string]*familyAcc)
	for _, mfs := range snapshots {
		for _, mf := range mfs {
			acc, ok := families[mf.GetName()]
			if !ok {
				acc = &familyAcc{
					name:    mf.GetName(),
					help:    mf.GetHelp(),
					typ:     mf.GetType(),
					metrics: make(map[string]*dto.Metric),
				}
				families[mf.GetName()] = acc
			}
			if mf.GetType() != acc.typ {
				continue
			}
			for _, m := range mf.GetMetric() {
				acc.add(m)
			}
		}
	}

	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*dto.MetricFamily, 0, len(names))
	for _, name := range names {
		out = append(out, families[name].family())
	}
	return out
}

type familyAcc struct {
	name    string
	help    string
	typ     dto.MetricType
	metrics map[string]*dto.Metric
}

func (f *familyAcc) add(m *dto.Metric) {
	key := labelKey(m.GetLabel())
	cur, ok := f.metrics[key]
	if !ok {
		f.metrics[key] = f.fresh(m)
		return
	}

	switch f.typ {
	case dto.MetricType_COUNTER:
		cur.Counter.Value = proto.Float64(cur.GetCounter().GetValue() + m.GetCounter().GetValue())
	case dto.MetricType_GAUGE:
		cur.Gauge.Value = proto.Float64(cur.GetGauge().GetValue() + m.GetGauge().GetValue())
	case dto.MetricType_UNTYPED:
		cur.Untyped.Value = proto.Float64(cur.GetUntyped().GetValue() + m.GetUntyped().GetValue())
	case dto.MetricType_SUMMARY:
		cur.Summary.SampleCount = proto.Uint64(cur.GetSummary().GetSampleCount() + m.GetSummary().GetSampleCount())
		cur.Summary.SampleSum = proto.Float64(cur.GetSummary().GetSampleSum() + m.GetSummary().GetSampleSum())
	case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
		mergeHistogram(cur.Histogram, m.GetHistogram())
	}
}

// fresh 复制第一次出现的样本，去掉不参与合并的字段
func (f *familyAcc) fresh(m *dto.Metric) *dto.Metric {
	out := &dto.Metric{Label: cloneLabels(m.GetLabel())}
	switch f.typ {
	case dto.MetricType_COUNTER:
		out.Counter = &dto.Counter{Value: proto.Float64(m.GetCounter().GetValue())}
	case dto.MetricType_GAUGE:
		out.Gauge = &dto.Gauge{Value: proto.Float64(m.GetGauge().GetValue())}
	case dto.MetricType_UNTYPED:
		out.Untyped = &dto.Untyped{Value: proto.Float64(m.GetUntyped().GetValue())}
	case dto.MetricType_SUMMARY:
		out.Summary = &dto.Summary{
			SampleCount: proto.Uint64(m.GetSummary().GetSampleCount()),
			SampleSum:   proto.Float64(m.GetSummary().GetSampleSum()),
		}
	case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
		h := m.GetHistogram()
		out.Histogram = &dto.Histogram{
			SampleCount: proto.Uint64(h.GetSampleCount()),
			SampleSum:   proto.Float64(h.GetSampleSum()),
		}
		for _, b := range h.GetBucket() {
			out.Histogram.Bucket = append(out.Histogram.Bucket, &dto.Bucket{
				UpperBound:      proto.Float64(b.GetUpperBound()),
				CumulativeCount: proto.Uint64(b.GetCumulativeCount()),
			})
		}
	}
	return out
}

// mergeHistogram 在两边上界的并集上重新计算累计值
//
// 某一侧没有的上界，取该侧不大于它的最大上界的累计值（没有则为 0），
// 进程间桶边界不一致时结果仍然单调不减。
func mergeHistogram(dst, src *dto.Histogram) {
	dst.SampleCount = proto.Uint64(dst.GetSampleCount() + src.GetSampleCount())
	dst.SampleSum = proto.Float64(dst.GetSampleSum() + src.GetSampleSum())

	a, b := dst.GetBucket(), src.GetBucket()
	merged := make([]*dto.Bucket, 0, max(len(a), len(b)))
	var i, j int
	var cumA, cumB uint64
	for i < len(a) || j < len(b) {
		var bound float64
		switch {
		case j >= len(b) || (i < len(a) && a[i].GetUpperBound() < b[j].GetUpperBound()):
			bound = a[i].GetUpperBound()
			cumA = a[i].GetCumulativeCount()
			i++
		case i >= len(a) || b[j].GetUpperBound() < a[i].GetUpperBound():
			bound = b[j].GetUpperBound()
			cumB = b[j].GetCumulativeCount()
			j++
		default:
			bound = a[i].GetUpperBound()
			cumA, cumB = a[i].GetCumulativeCount(), b[j].GetCumulativeCount()
			i++
			j++
		}
		merged = append(merged, &dto.Bucket{
			UpperBound:      proto.Float64(bound),
			CumulativeCount: proto.Uint64(cumA + cumB),
		})
	}
	dst.Bucket = merged
}

func (f *familyAcc) family() *dto.MetricFamily {
	keys := make([]string, 0, len(f.metrics))
	for k := range f.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mf := &dto.MetricFamily{
		Name: proto.String(f.name),
		Help: proto.String(f.help),
		Type: f.typ.Enum(),
	}
	for _, k := range keys {
		mf.Metric = append(mf.Metric, f.metrics[k])
	}
	return mf
}

func labelKey(labels []*dto.LabelPair) string {
	pairs := make([]string, len(labels))
	for i, l := range labels {
		pairs[i] = l.GetName() + "\xff" + l.GetValue()
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "\xfe")
}

func cloneLabels(labels []*dto.LabelPair) []*dto.LabelPair {
	out := make([]*dto.LabelPair, len(labels))
	for i, l := range labels {
		out[i] = &dto.LabelPair{Name: proto.String(l.GetName()), Value: proto.String(l.GetValue())}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}
