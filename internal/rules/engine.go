// Package rules 按 URL / 方法 / 头部条件对网络请求分类，用于识别媒体清单。
package rules

import (
	"sort"
	"strings"
	"sync"
)

// Condition 单个匹配条件
type Condition struct {
	Type    string   `json:"type" mapstructure:"type"`       // url / method / header / query
	Mode    string   `json:"mode" mapstructure:"mode"`       // url: prefix / suffix / contains / regex / exact / glob
	Pattern string   `json:"pattern" mapstructure:"pattern"` // url 模式
	Values  []string `json:"values" mapstructure:"values"`   // method 取值
	Key     string   `json:"key" mapstructure:"key"`         // header / query 名称
	Op      string   `json:"op" mapstructure:"op"`           // equals / contains / regex / exists
	Value   string   `json:"value" mapstructure:"value"`
}

// Match 条件组合
type Match struct {
	AllOf  []Condition `json:"allOf" mapstructure:"allOf"`
	AnyOf  []Condition `json:"anyOf" mapstructure:"anyOf"`
	NoneOf []Condition `json:"noneOf" mapstructure:"noneOf"`
}

// Rule 分类规则，命中后请求归为 Kind
type Rule struct {
	ID       string `json:"id" mapstructure:"id"`
	Kind     string `json:"kind" mapstructure:"kind"`
	Priority int    `json:"priority" mapstructure:"priority"`
	Match    Match  `json:"match" mapstructure:"match"`
}

// Ctx 评估上下文
type Ctx struct {
	URL     string
	Method  string
	Headers map[string]string // 小写键
	Query   map[string]string // 小写键
}

// Result 命中结果
type Result struct {
	RuleID string
	Kind   string
}

// Engine 规则引擎，规则可在运行时替换
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
}

// New 创建引擎，规则按优先级降序评估
func New(rs []Rule) *Engine {
	e := &Engine{}
	e.Update(rs)
	return e
}

// Update 替换规则集
func (e *Engine) Update(rs []Rule) {
	sorted := append([]Rule(nil), rs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	e.mu.Lock()
	e.rules = sorted
	e.mu.Unlock()
}

// Eval 返回优先级最高的命中规则，未命中返回 nil
func (e *Engine) Eval(ctx Ctx) *Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := range e.rules {
		r := &e.rules[i]
		if matchRule(ctx, r.Match) {
			return &Result{RuleID: r.ID, Kind: r.Kind}
		}
	}
	return nil
}

func matchRule(ctx Ctx, m Match) bool {
	if len(m.AllOf) == 0 && len(m.AnyOf) == 0 && len(m.NoneOf) == 0 {
		return false
	}
	ok := true
	if len(m.AllOf) > 0 {
		ok = ok && allOf(ctx, m.AllOf)
	}
	if len(m.AnyOf) > 0 {
		ok = ok && anyOf(ctx, m.AnyOf)
	}
	if len(m.NoneOf) > 0 {
		ok = ok && noneOf(ctx, m.NoneOf)
	}
	return ok
}

func allOf(ctx Ctx, cs []Condition) bool {
	for i := range cs {
		if !cond(ctx, cs[i]) {
			return false
		}
	}
	return true
}

func anyOf(ctx Ctx, cs []Condition) bool {
	for i := range cs {
		if cond(ctx, cs[i]) {
			return true
		}
	}
	return false
}

func noneOf(ctx Ctx, cs []Condition) bool { return !anyOf(ctx, cs) }

func cond(ctx Ctx, c Condition) bool {
	switch c.Type {
	case "url":
		u := strings.ToLower(ctx.URL)
		p := strings.ToLower(c.Pattern)
		switch c.Mode {
		case "prefix":
			return strings.HasPrefix(u, p)
		case "suffix":
			return strings.HasSuffix(stripQuery(u), p)
		case "contains":
			return strings.Contains(u, p)
		case "regex":
			return matchRegex(ctx.URL, c.Pattern)
		case "exact":
			return u == p
		default:
			return glob(u, p)
		}
	case "method":
		for _, v := range c.Values {
			if strings.EqualFold(ctx.Method, v) {
				return true
			}
		}
		return false
	case "header":
		v, ok := ctx.Headers[strings.ToLower(c.Key)]
		return ok && op(v, c)
	case "query":
		v, ok := ctx.Query[strings.ToLower(c.Key)]
		return ok && op(v, c)
	default:
		return false
	}
}

func op(v string, c Condition) bool {
	switch c.Op {
	case "equals":
		return v == c.Value
	case "contains":
		return strings.Contains(strings.ToLower(v), strings.ToLower(c.Value))
	case "regex":
		return matchRegex(v, c.Value)
	default:
		return true
	}
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i != -1 {
		return u[:i]
	}
	return u
}

func matchRegex(s, pattern string) bool {
	re, err := regexCache.Get(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func glob(s, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(s, strings.TrimPrefix(pattern, "*")) {
		return true
	}
	if strings.HasSuffix(pattern, "*") && strings.HasPrefix(s, strings.TrimSuffix(pattern, "*")) {
		return true
	}
	return s == pattern
}
