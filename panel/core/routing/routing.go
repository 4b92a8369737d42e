package routing

import (
	"regexp"
	"strings"

	"gorm.io/gorm"
	"smspanel/panel/common/logx"
	"smspanel/panel/db/dao"
	"smspanel/panel/model"
)

var routingLog = logx.New(logx.WithPrefix("routing"))

/******** 对外结构 ********/

// Message：待路由的一条消息。Tags 为任意键值对（tag 过滤器按 parameter 取值）。
type Message struct {
	From      string            `json:"from"`
	To        string            `json:"to"`
	Content   string            `json:"content"`
	UserId    string            `json:"user_id"`
	ShortCode string            `json:"short_code"`
	Tags      map[string]string `json:"tags"`
}

type Decision struct {
	Matched bool `json:"matched"`

	RouteId             int64   `json:"route_id,omitempty"`
	Ord                 int     `json:"ord,omitempty"`
	Type                string  `json:"type,omitempty"`
	ConnectorId         int64   `json:"connector_id,omitempty"`
	FailoverConnectorId int64   `json:"failover_connector_id,omitempty"`
	Rate                float64 `json:"rate,omitempty"`

	// 命中路由上实际生效（active）的过滤器 fid 集合
	MatchedFids []string `json:"matched_fids,omitempty"`
}

// FilterTrace：test 接口的逐过滤器解释
type FilterTrace struct {
	Fid     string `json:"fid"`
	Type    string `json:"type"`
	Active  bool   `json:"active"`
	Matched bool   `json:"matched"`
}

type RouteTrace struct {
	RouteId int64         `json:"route_id"`
	Ord     int           `json:"ord"`
	Active  bool          `json:"active"`
	Matched bool          `json:"matched"`
	Filters []FilterTrace `json:"filters"`
}

/******** 评估器 ********/

// 编译好的过滤器：正则在快照装载时编译一次，烂正则（理论上建库时已拦住）
// 当永不命中处理。
type compiledFilter struct {
	f  model.Filter
	re *regexp.Regexp
}

// Evaluator：路由表+过滤器的内存快照。评估是纯函数，不碰库；
// 表变更后由调用方 Reload 换新快照。
type Evaluator struct {
	routes  []model.Route
	filters map[int64]compiledFilter
}

// NewEvaluator：从主库装载当前路由表快照
func NewEvaluator(db *gorm.DB) (*Evaluator, error) {
	routes, err := dao.ListRoutes(db)
	if err != nil {
		return nil, err
	}
	raw, err := dao.SnapshotFilters(db)
	if err != nil {
		return nil, err
	}
	ev := &Evaluator{
		routes:  routes,
		filters: make(map[int64]compiledFilter, len(raw)),
	}
	for id, f := range raw {
		cf := compiledFilter{f: f}
		if f.IsRegex {
			pat := f.Value
			if !f.IsCaseSensitive {
				pat = "(?i)" + pat
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				routingLog.Errorf("filter %s: stored regex no longer compiles: %v", f.Fid, err)
			} else {
				cf.re = re
			}
		}
		ev.filters[id] = cf
	}
	return ev, nil
}

// Evaluate：按 ord 升序找第一条命中的 active 路由。路由的全部 active
// 过滤器都命中（AND）才算命中；停用过滤器视同不存在。没有任何生效
// 过滤器的 active 路由是 catch-all。无命中不是错误，Matched=false。
func (ev *Evaluator) Evaluate(m *Message) Decision {
	for i := range ev.routes {
		r := &ev.routes[i]
		if !r.IsActive {
			continue
		}
		ok, fids := ev.routeMatches(r, m)
		if !ok {
			continue
		}
		return Decision{
			Matched:             true,
			RouteId:             r.Id,
			Ord:                 r.Ord,
			Type:                r.Type,
			ConnectorId:         r.ConnectorId,
			FailoverConnectorId: r.FailoverConnectorId,
			Rate:                r.Rate,
			MatchedFids:         fids,
		}
	}
	return Decision{Matched: false}
}

// Explain：对每条路由（含停用的）给出逐过滤器的命中轨迹，test 接口用
func (ev *Evaluator) Explain(m *Message) (Decision, []RouteTrace) {
	traces := make([]RouteTrace, 0, len(ev.routes))
	dec := Decision{Matched: false}
	for i := range ev.routes {
		r := &ev.routes[i]
		t := RouteTrace{RouteId: r.Id, Ord: r.Ord, Active: r.IsActive}
		allOK := true
		for _, fid := range r.Filters {
			cf, found := ev.filters[fid]
			if !found {
				routingLog.Errorf("route ord=%d references missing filter id=%d", r.Ord, fid)
				allOK = false
				continue
			}
			ft := FilterTrace{Fid: cf.f.Fid, Type: cf.f.Type, Active: cf.f.IsActive}
			if cf.f.IsActive {
				ft.Matched = filterMatches(&cf, m)
				if !ft.Matched {
					allOK = false
				}
			}
			t.Filters = append(t.Filters, ft)
		}
		t.Matched = r.IsActive && allOK
		if t.Matched && !dec.Matched {
			dec = Decision{
				Matched:             true,
				RouteId:             r.Id,
				Ord:                 r.Ord,
				Type:                r.Type,
				ConnectorId:         r.ConnectorId,
				FailoverConnectorId: r.FailoverConnectorId,
				Rate:                r.Rate,
			}
		}
		traces = append(traces, t)
	}
	return dec, traces
}

// routeMatches：AND 语义。引用了不存在的过滤器属于不变量破损，
// 记错误日志并把该路由当不命中（宁可不发也不乱发）。
func (ev *Evaluator) routeMatches(r *model.Route, m *Message) (bool, []string) {
	fids := make([]string, 0, len(r.Filters))
	for _, fid := range r.Filters {
		cf, found := ev.filters[fid]
		if !found {
			routingLog.Errorf("route ord=%d references missing filter id=%d", r.Ord, fid)
			return false, nil
		}
		if !cf.f.IsActive {
			continue
		}
		if !filterMatches(&cf, m) {
			return false, nil
		}
		fids = append(fids, cf.f.Fid)
	}
	return true, fids
}

// filterMatches：取字段 -> 匹配 -> negate 反转。字段缺失（tag 无该键、
// short_code 为空）按原始不匹配算，negate 后就是命中。to/from/content/user
// 恒为存在，空串照常参与匹配（如 ^$）。
func filterMatches(cf *compiledFilter, m *Message) bool {
	subject, present := fieldOf(&cf.f, m)
	raw := false
	if present {
		if cf.f.IsRegex {
			raw = cf.re != nil && cf.re.MatchString(subject)
		} else if cf.f.IsCaseSensitive {
			raw = strings.Contains(subject, cf.f.Value)
		} else {
			raw = strings.Contains(strings.ToLower(subject), strings.ToLower(cf.f.Value))
		}
	}
	if cf.f.Negate {
		return !raw
	}
	return raw
}

func fieldOf(f *model.Filter, m *Message) (string, bool) {
	switch f.Type {
	case model.FilterDestination:
		return m.To, true
	case model.FilterSource:
		return m.From, true
	case model.FilterContent:
		return m.Content, true
	case model.FilterUser:
		return m.UserId, true
	case model.FilterShortCode:
		return m.ShortCode, m.ShortCode != ""
	case model.FilterTag:
		if m.Tags == nil {
			return "", false
		}
		v, ok := m.Tags[f.Parameter]
		return v, ok
	default:
		return "", false
	}
}
