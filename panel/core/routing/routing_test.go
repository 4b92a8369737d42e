package routing

import (
	"testing"

	sqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	gdb "smspanel/panel/db"
	"smspanel/panel/db/dao"
	"smspanel/panel/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	g, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := gdb.MigrateMasterSQL(g, "sqlite"); err != nil {
		t.Fatal(err)
	}
	return g
}

func mkConnector(t *testing.T, g *gorm.DB, cid string) *model.Connector {
	t.Helper()
	c := &model.Connector{Cid: cid, Host: "smpp.example.com", Port: 2775}
	if err := dao.CreateConnector(g, c); err != nil {
		t.Fatal(err)
	}
	return c
}

func mkFilter(t *testing.T, g *gorm.DB, f model.Filter) int64 {
	t.Helper()
	f.IsActive = true
	if err := dao.CreateFilter(g, &f); err != nil {
		t.Fatal(err)
	}
	return f.Id
}

func mkRoute(t *testing.T, g *gorm.DB, connId int64, filters ...int64) *model.Route {
	t.Helper()
	r := &model.Route{ConnectorId: connId, Filters: model.Int64List(filters), IsActive: true}
	if err := dao.CreateRoute(g, r); err != nil {
		t.Fatal(err)
	}
	return r
}

func eval(t *testing.T, g *gorm.DB, m *Message) Decision {
	t.Helper()
	ev, err := NewEvaluator(g)
	if err != nil {
		t.Fatal(err)
	}
	return ev.Evaluate(m)
}

func TestFirstMatchWins(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	f := mkFilter(t, g, model.Filter{Fid: "to-ng", Type: model.FilterDestination, Value: "+234"})
	r1 := mkRoute(t, g, c.Id, f)
	mkRoute(t, g, c.Id, f) // 同样命中，但排在后面

	d := eval(t, g, &Message{To: "+2348012345678"})
	if !d.Matched || d.RouteId != r1.Id || d.Ord != 1 {
		t.Fatalf("want route ord=1, got %+v", d)
	}
}

func TestCatchAllRoute(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	f := mkFilter(t, g, model.Filter{Fid: "to-ng", Type: model.FilterDestination, Value: "+234"})
	mkRoute(t, g, c.Id, f)
	catch := mkRoute(t, g, c.Id) // 无过滤器 = 兜底

	d := eval(t, g, &Message{To: "+15551234567"})
	if !d.Matched || d.RouteId != catch.Id {
		t.Fatalf("want catch-all, got %+v", d)
	}
	if len(d.MatchedFids) != 0 {
		t.Fatalf("catch-all should report no fids: %+v", d.MatchedFids)
	}
}

func TestNoRouteIsNotAnError(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	f := mkFilter(t, g, model.Filter{Fid: "to-ng", Type: model.FilterDestination, Value: "+234"})
	mkRoute(t, g, c.Id, f)

	d := eval(t, g, &Message{To: "+15551234567"})
	if d.Matched {
		t.Fatalf("want no match, got %+v", d)
	}
}

func TestAndSemantics(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	fTo := mkFilter(t, g, model.Filter{Fid: "to-ng", Type: model.FilterDestination, Value: "+234"})
	fBody := mkFilter(t, g, model.Filter{Fid: "promo", Type: model.FilterContent, Value: "PROMO"})
	mkRoute(t, g, c.Id, fTo, fBody)

	if d := eval(t, g, &Message{To: "+2348012345678", Content: "hello"}); d.Matched {
		t.Fatalf("only one filter hit, want no match: %+v", d)
	}
	d := eval(t, g, &Message{To: "+2348012345678", Content: "big PROMO today"})
	if !d.Matched || len(d.MatchedFids) != 2 {
		t.Fatalf("want both fids, got %+v", d)
	}
}

func TestNegate(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	f := mkFilter(t, g, model.Filter{Fid: "not-ng", Type: model.FilterDestination, Value: "+234", Negate: true})
	mkRoute(t, g, c.Id, f)

	if d := eval(t, g, &Message{To: "+2348012345678"}); d.Matched {
		t.Fatalf("negated filter matched its own value: %+v", d)
	}
	if d := eval(t, g, &Message{To: "+447700900123"}); !d.Matched {
		t.Fatalf("negated filter should match others: %+v", d)
	}
	// 字段缺失：原始不命中，negate 后命中
	if d := eval(t, g, &Message{Content: "x"}); !d.Matched {
		t.Fatalf("negate on absent field should match: %+v", d)
	}
}

func TestCaseSensitivity(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	ci := mkFilter(t, g, model.Filter{Fid: "promo-ci", Type: model.FilterContent, Value: "PROMO"})
	mkRoute(t, g, c.Id, ci)

	if d := eval(t, g, &Message{To: "+1", Content: "promo code"}); !d.Matched {
		t.Fatalf("case-insensitive filter missed: %+v", d)
	}

	g2 := newTestDB(t)
	c2 := mkConnector(t, g2, "mtn-01")
	cs := mkFilter(t, g2, model.Filter{Fid: "promo-cs", Type: model.FilterContent, Value: "PROMO", IsCaseSensitive: true})
	mkRoute(t, g2, c2.Id, cs)

	if d := eval(t, g2, &Message{Content: "promo code"}); d.Matched {
		t.Fatalf("case-sensitive filter matched wrong case: %+v", d)
	}
	if d := eval(t, g2, &Message{Content: "PROMO code"}); !d.Matched {
		t.Fatalf("case-sensitive filter missed exact case: %+v", d)
	}
}

func TestRegexFilter(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	f := mkFilter(t, g, model.Filter{Fid: "uk-mobile", Type: model.FilterDestination, Value: `^\+447\d{9}$`, IsRegex: true, IsCaseSensitive: true})
	mkRoute(t, g, c.Id, f)

	if d := eval(t, g, &Message{To: "+447700900123"}); !d.Matched {
		t.Fatalf("regex missed valid number: %+v", d)
	}
	if d := eval(t, g, &Message{To: "+44770090012"}); d.Matched {
		t.Fatalf("regex matched short number: %+v", d)
	}
}

func TestInactiveFilterTreatedAbsent(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	f := mkFilter(t, g, model.Filter{Fid: "to-ng", Type: model.FilterDestination, Value: "+234"})
	r := mkRoute(t, g, c.Id, f)

	// 停用唯一的过滤器：路由变兜底
	ff, _ := dao.GetFilterById(g, f)
	ff.IsActive = false
	if err := dao.UpdateFilter(g, ff); err != nil {
		t.Fatal(err)
	}
	d := eval(t, g, &Message{To: "+15551234567"})
	if !d.Matched || d.RouteId != r.Id {
		t.Fatalf("route with only inactive filter should catch all: %+v", d)
	}
}

func TestInactiveRouteSkipped(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	f := mkFilter(t, g, model.Filter{Fid: "to-ng", Type: model.FilterDestination, Value: "+234"})
	r1 := mkRoute(t, g, c.Id, f)
	r2 := mkRoute(t, g, c.Id, f)

	got, _ := dao.GetRouteById(g, r1.Id)
	got.IsActive = false
	if err := dao.UpdateRoute(g, got); err != nil {
		t.Fatal(err)
	}
	d := eval(t, g, &Message{To: "+2348012345678"})
	if !d.Matched || d.RouteId != r2.Id {
		t.Fatalf("inactive route not skipped: %+v", d)
	}
}

func TestTagAndShortCode(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	fTag := mkFilter(t, g, model.Filter{Fid: "bulk-tag", Type: model.FilterTag, Parameter: "channel", Value: "bulk"})
	mkRoute(t, g, c.Id, fTag)
	fSc := mkFilter(t, g, model.Filter{Fid: "sc-777", Type: model.FilterShortCode, Value: "777"})
	mkRoute(t, g, c.Id, fSc)

	if d := eval(t, g, &Message{To: "+1", Tags: map[string]string{"channel": "bulk"}}); !d.Matched || d.Ord != 1 {
		t.Fatalf("tag filter missed: %+v", d)
	}
	// tag 键缺失 -> 不命中
	if d := eval(t, g, &Message{To: "+1", Tags: map[string]string{"other": "bulk"}}); d.Matched {
		t.Fatalf("absent tag key matched: %+v", d)
	}
	if d := eval(t, g, &Message{ShortCode: "77701"}); !d.Matched || d.Ord != 2 {
		t.Fatalf("short_code filter missed: %+v", d)
	}
}

func TestMissingFilterReferenceFailsClosed(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	f := mkFilter(t, g, model.Filter{Fid: "to-ng", Type: model.FilterDestination, Value: "+234"})
	r := mkRoute(t, g, c.Id, f)

	// 绕过 DAO 直接制造悬空引用
	if err := g.Exec(`DELETE FROM filter WHERE id = ?`, f).Error; err != nil {
		t.Fatal(err)
	}
	d := eval(t, g, &Message{To: "+2348012345678"})
	if d.Matched {
		t.Fatalf("route %d with dangling filter must not match: %+v", r.Id, d)
	}
}

func TestExplainReportsAllRoutes(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	fNg := mkFilter(t, g, model.Filter{Fid: "to-ng", Type: model.FilterDestination, Value: "+234"})
	fUk := mkFilter(t, g, model.Filter{Fid: "to-uk", Type: model.FilterDestination, Value: "+44"})
	mkRoute(t, g, c.Id, fNg)
	r2 := mkRoute(t, g, c.Id, fUk)
	mkRoute(t, g, c.Id) // 兜底

	ev, err := NewEvaluator(g)
	if err != nil {
		t.Fatal(err)
	}
	dec, traces := ev.Explain(&Message{To: "+447700900123"})
	if !dec.Matched || dec.RouteId != r2.Id {
		t.Fatalf("want route 2, got %+v", dec)
	}
	if len(traces) != 3 {
		t.Fatalf("want 3 traces, got %d", len(traces))
	}
	if traces[0].Matched || !traces[1].Matched || !traces[2].Matched {
		t.Fatalf("trace match flags wrong: %+v", traces)
	}
	if len(traces[1].Filters) != 1 || traces[1].Filters[0].Fid != "to-uk" || !traces[1].Filters[0].Matched {
		t.Fatalf("filter trace wrong: %+v", traces[1].Filters)
	}
}

func TestEmptyScalarFieldStillMatchable(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	// ^$ 只命中空 from
	f := mkFilter(t, g, model.Filter{Fid: "src-empty", Type: model.FilterSource, Value: "^$", IsRegex: true})
	r := mkRoute(t, g, c.Id, f)

	d := eval(t, g, &Message{To: "+2348012345678"})
	if !d.Matched || d.RouteId != r.Id {
		t.Fatalf("empty from should match ^$, got %+v", d)
	}
	if d := eval(t, g, &Message{To: "+2348012345678", From: "SENDER"}); d.Matched {
		t.Fatalf("non-empty from must not match ^$, got %+v", d)
	}
}
