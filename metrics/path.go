package metrics

// Decision 路径分类结果
type Decision struct {
	// Skip 为 true 时不记录任何指标
	Skip bool
	// Path 作为 path 标签的取值
	Path string
}

// PathClassifier 决定请求是否被记录，以及 path 标签取原始路径还是路由模板
type PathClassifier struct {
	skip            map[string]struct{}
	groupPaths      bool
	filterUnhandled bool
}

// NewPathClassifier 创建路径分类器
//
// skipPaths 按原始路径精确匹配；groupPaths 为 true 时命中路由的请求使用路由模板；
// filterUnhandled 为 true 时未命中任何路由的请求不被记录。
func NewPathClassifier(skipPaths []string, groupPaths, filterUnhandled bool) *PathClassifier {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return &PathClassifier{
		skip:            skip,
		groupPaths:      groupPaths,
		filterUnhandled: filterUnhandled,
	}
}

// Classify 按以下顺序判定：
//  1. 原始路径在 skip 列表中：跳过
//  2. 开启过滤且路由明确未命中：跳过
//  3. 开启分组且命中路由：使用路由模板
//  4. 其余情况使用原始路径
func (c *PathClassifier) Classify(rawPath string, route RouteMatch) Decision {
	if _, ok := c.skip[rawPath]; ok {
		return Decision{Skip: true}
	}
	if c.filterUnhandled && route.State == RouteUnmatched {
		return Decision{Skip: true}
	}
	if c.groupPaths && route.State == RouteMatched {
		return Decision{Path: route.Template}
	}
	return Decision{Path: rawPath}
}

// Skipped 只检查 skip 列表
func (c *PathClassifier) Skipped(rawPath string) bool {
	_, ok := c.skip[rawPath]
	return ok
}
