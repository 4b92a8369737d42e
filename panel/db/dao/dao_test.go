package dao

import (
	"errors"
	"fmt"
	"testing"

	sqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	gdb "smspanel/panel/db"
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
	c := &model.Connector{Cid: cid, Host: "smpp.example.com", Port: 2775, BindType: model.BindTransceiver}
	if err := CreateConnector(g, c); err != nil {
		t.Fatal(err)
	}
	return c
}

func mkFilter(t *testing.T, g *gorm.DB, fid, typ, value string) *model.Filter {
	t.Helper()
	f := &model.Filter{Fid: fid, Type: typ, Value: value, IsActive: true}
	if err := CreateFilter(g, f); err != nil {
		t.Fatal(err)
	}
	return f
}

func ords(t *testing.T, g *gorm.DB) []int {
	t.Helper()
	routes, err := ListRoutes(g)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]int, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.Ord)
	}
	return out
}

func wantContiguous(t *testing.T, g *gorm.DB, n int) {
	t.Helper()
	got := ords(t, g)
	if len(got) != n {
		t.Fatalf("want %d routes, got %v", n, got)
	}
	for i, o := range got {
		if o != i+1 {
			t.Fatalf("ord not contiguous: %v", got)
		}
	}
}

func TestCreateRouteAppendsOrd(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	for i := 0; i < 3; i++ {
		r := &model.Route{ConnectorId: c.Id, IsActive: true}
		if err := CreateRoute(g, r); err != nil {
			t.Fatal(err)
		}
		if r.Ord != i+1 {
			t.Fatalf("route %d got ord %d", i, r.Ord)
		}
	}
	wantContiguous(t, g, 3)
}

func TestCreateRouteExplicitOrdShifts(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	var ids []int64
	for i := 0; i < 3; i++ {
		r := &model.Route{ConnectorId: c.Id, IsActive: true}
		if err := CreateRoute(g, r); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.Id)
	}
	// 插到 2 号位，原 2/3 后移
	mid := &model.Route{ConnectorId: c.Id, Ord: 2, IsActive: true}
	if err := CreateRoute(g, mid); err != nil {
		t.Fatal(err)
	}
	wantContiguous(t, g, 4)
	routes, _ := ListRoutes(g)
	if routes[1].Id != mid.Id {
		t.Fatalf("inserted route not at position 2: %+v", routes)
	}
	if routes[2].Id != ids[1] || routes[3].Id != ids[2] {
		t.Fatalf("shifted routes out of order: %+v", routes)
	}
}

func TestDeleteRouteCompactsOrd(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	var ids []int64
	for i := 0; i < 4; i++ {
		r := &model.Route{ConnectorId: c.Id, IsActive: true}
		if err := CreateRoute(g, r); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.Id)
	}
	if err := DeleteRoute(g, ids[1]); err != nil {
		t.Fatal(err)
	}
	wantContiguous(t, g, 3)
	routes, _ := ListRoutes(g)
	want := []int64{ids[0], ids[2], ids[3]}
	for i, r := range routes {
		if r.Id != want[i] {
			t.Fatalf("unexpected order after delete: %+v", routes)
		}
	}
}

func TestReorderRoutes(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	var ids []int64
	for i := 0; i < 3; i++ {
		r := &model.Route{ConnectorId: c.Id, IsActive: true}
		if err := CreateRoute(g, r); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.Id)
	}
	order := map[int64]int{ids[0]: 3, ids[1]: 1, ids[2]: 2}
	if err := ReorderRoutes(g, order); err != nil {
		t.Fatal(err)
	}
	wantContiguous(t, g, 3)
	routes, _ := ListRoutes(g)
	want := []int64{ids[1], ids[2], ids[0]}
	for i, r := range routes {
		if r.Id != want[i] {
			t.Fatalf("reorder result wrong: %+v", routes)
		}
	}

	// 幂等：同一映射再来一遍，结果不变
	if err := ReorderRoutes(g, order); err != nil {
		t.Fatal(err)
	}
	routes2, _ := ListRoutes(g)
	for i, r := range routes2 {
		if r.Id != want[i] {
			t.Fatalf("reorder not idempotent: %+v", routes2)
		}
	}
}

func TestReorderRejectsBadSets(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	var ids []int64
	for i := 0; i < 3; i++ {
		r := &model.Route{ConnectorId: c.Id, IsActive: true}
		if err := CreateRoute(g, r); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.Id)
	}
	before := ords(t, g)

	cases := []map[int64]int{
		{ids[0]: 1, ids[1]: 2},                     // 缺一条
		{ids[0]: 1, ids[1]: 2, ids[2]: 2},          // ord 重复
		{ids[0]: 1, ids[1]: 2, ids[2]: 5},          // ord 越界
		{ids[0]: 1, ids[1]: 2, 9999: 3},            // 外来 id
		{ids[0]: 1, ids[1]: 2, ids[2]: 3, 9999: 4}, // 多一条
	}
	for i, bad := range cases {
		err := ReorderRoutes(g, bad)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("case %d: want ValidationError, got %v", i, err)
		}
		after := ords(t, g)
		if fmt.Sprint(after) != fmt.Sprint(before) {
			t.Fatalf("case %d: failed reorder mutated table: %v -> %v", i, before, after)
		}
	}
}

func TestDeleteFilterBlockedWhenReferenced(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	f := mkFilter(t, g, "to-nigeria", model.FilterDestination, "+234")
	r := &model.Route{ConnectorId: c.Id, Filters: model.Int64List{f.Id}, IsActive: true}
	if err := CreateRoute(g, r); err != nil {
		t.Fatal(err)
	}

	err := DeleteFilter(g, f.Id)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConflictError, got %v", err)
	}
	// 双方都原样
	if _, err := GetFilterById(g, f.Id); err != nil {
		t.Fatalf("filter vanished after rejected delete: %v", err)
	}
	got, err := GetRouteById(g, r.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Filters) != 1 || got.Filters[0] != f.Id {
		t.Fatalf("route filters changed: %+v", got.Filters)
	}

	// 解绑后可删
	got.Filters = model.Int64List{}
	if err := UpdateRoute(g, got); err != nil {
		t.Fatal(err)
	}
	if err := DeleteFilter(g, f.Id); err != nil {
		t.Fatal(err)
	}
}

func TestFilterValidation(t *testing.T) {
	g := newTestDB(t)

	var ve *ValidationError
	bad := []*model.Filter{
		{Fid: "", Type: model.FilterContent, Value: "x"},
		{Fid: "f1", Type: "bogus", Value: "x"},
		{Fid: "f1", Type: model.FilterContent, Value: ""},
		{Fid: "f1", Type: model.FilterContent, Value: "([", IsRegex: true},
		{Fid: "f1", Type: model.FilterTag, Value: "x"},                     // tag 必须带 parameter
		{Fid: "f1", Type: model.FilterContent, Parameter: "p", Value: "x"}, // 非 tag 不许带
	}
	for i, f := range bad {
		if err := CreateFilter(g, f); !errors.As(err, &ve) {
			t.Fatalf("case %d: want ValidationError, got %v", i, err)
		}
	}

	ok := &model.Filter{Fid: "f1", Type: model.FilterContent, Value: "PROMO", IsActive: true}
	if err := CreateFilter(g, ok); err != nil {
		t.Fatal(err)
	}
	// fid 撞车
	dup := &model.Filter{Fid: "f1", Type: model.FilterContent, Value: "x"}
	var ce *ConflictError
	if err := CreateFilter(g, dup); !errors.As(err, &ce) {
		t.Fatalf("want ConflictError on dup fid, got %v", err)
	}
}

func TestRouteValidation(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")

	var ve *ValidationError
	cases := []*model.Route{
		{ConnectorId: 0},                                                          // 缺连接器
		{ConnectorId: 9999},                                                       // 连接器不存在
		{ConnectorId: c.Id, Rate: -1},                                             // 负费率
		{ConnectorId: c.Id, Type: "bogus"},                                        // 未知类型
		{ConnectorId: c.Id, Filters: model.Int64List{424242}},                     // 过滤器不存在
		{ConnectorId: c.Id, Type: model.RouteFailover},                            // failover 缺备用
		{ConnectorId: c.Id, Type: model.RouteFailover, FailoverConnectorId: c.Id}, // 备用=主用
	}
	for i, r := range cases {
		if err := CreateRoute(g, r); !errors.As(err, &ve) {
			t.Fatalf("case %d: want ValidationError, got %v", i, err)
		}
	}
	wantContiguous(t, g, 0)
}

func TestConnectorDeleteBlockedWhenRouted(t *testing.T) {
	g := newTestDB(t)
	c := mkConnector(t, g, "mtn-01")
	r := &model.Route{ConnectorId: c.Id, IsActive: true}
	if err := CreateRoute(g, r); err != nil {
		t.Fatal(err)
	}
	var ce *ConflictError
	if err := DeleteConnector(g, c.Id); !errors.As(err, &ce) {
		t.Fatalf("want ConflictError, got %v", err)
	}
	if err := DeleteRoute(g, r.Id); err != nil {
		t.Fatal(err)
	}
	if err := DeleteConnector(g, c.Id); err != nil {
		t.Fatal(err)
	}
}

func TestCampaignTransitions(t *testing.T) {
	g := newTestDB(t)
	cp := &model.Campaign{Name: "spring-promo", MessageContent: "hello"}
	if err := CreateCampaign(g, cp); err != nil {
		t.Fatal(err)
	}
	if cp.Status != model.CampaignDraft {
		t.Fatalf("new campaign status = %s", cp.Status)
	}

	// draft -> running -> paused -> running -> cancelled
	for _, to := range []string{model.CampaignRunning, model.CampaignPaused, model.CampaignRunning, model.CampaignCancelled} {
		if _, err := TransitionCampaign(g, cp.Id, to); err != nil {
			t.Fatalf("-> %s: %v", to, err)
		}
	}
	// 已取消不可再启动
	var ce *ConflictError
	if _, err := TransitionCampaign(g, cp.Id, model.CampaignRunning); !errors.As(err, &ce) {
		t.Fatalf("want ConflictError, got %v", err)
	}
}

func TestContactImportSkipsDupsAndBadNumbers(t *testing.T) {
	g := newTestDB(t)
	if err := CreateContact(g, &model.Contact{PhoneNumber: "+2348012345678", Groups: model.StringList{"lagos"}}); err != nil {
		t.Fatal(err)
	}
	res, err := ImportContacts(g, []model.Contact{
		{PhoneNumber: "+2348012345678"}, // 已存在
		{PhoneNumber: "not-a-number"},   // 格式烂
		{PhoneNumber: "+447700900123", Groups: model.StringList{"uk"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 || res.Skipped != 2 {
		t.Fatalf("unexpected import result: %+v", res)
	}
}

func TestExpandGroupsSkipsOptedOut(t *testing.T) {
	g := newTestDB(t)
	seed := []model.Contact{
		{PhoneNumber: "+2348012345671", Groups: model.StringList{"lagos"}},
		{PhoneNumber: "+2348012345672", Groups: model.StringList{"lagos", "vip"}},
		{PhoneNumber: "+2348012345673", Groups: model.StringList{"lagos"}, Status: model.ContactOptedOut},
		{PhoneNumber: "+2348012345674", Groups: model.StringList{"abuja"}},
		{PhoneNumber: "+2348012345675", Groups: model.StringList{"vip"}, Status: model.ContactBlocked},
	}
	for i := range seed {
		if err := CreateContact(g, &seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	// lagos+vip：去重，退订/拉黑不出现
	got, err := ExpandGroups(g, []string{"lagos", "vip"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("lagos+vip: got %d contacts", len(got))
	}
	for _, c := range got {
		if c.Status != model.ContactActive {
			t.Fatalf("non-active contact expanded: %s (%s)", c.PhoneNumber, c.Status)
		}
	}

	// 空分组 = 全部 active
	all, err := ExpandGroups(g, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("all active: got %d", len(all))
	}
}

func TestFilterCaseSensitiveColumnDefault(t *testing.T) {
	g := newTestDB(t)
	// 不带 is_case_sensitive 的直插（非 API 路径）也应落默认 1
	if err := g.Exec(`INSERT INTO filter (fid, type, value) VALUES ('kw-raw', 'content', 'STOP')`).Error; err != nil {
		t.Fatal(err)
	}
	f, err := GetFilterByFid(g, "kw-raw")
	if err != nil {
		t.Fatal(err)
	}
	if !f.IsCaseSensitive {
		t.Fatal("is_case_sensitive should default to 1")
	}
}

func TestContactCustomFieldsRoundTrip(t *testing.T) {
	g := newTestDB(t)
	c := &model.Contact{
		PhoneNumber: "+2348012345680",
		Custom:      model.StringMap{"account_no": "ACC-1001"},
	}
	if err := CreateContact(g, c); err != nil {
		t.Fatal(err)
	}
	got, err := GetContactById(g, c.Id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Custom["account_no"] != "ACC-1001" {
		t.Fatalf("custom fields lost: %v", got.Custom)
	}

	c.Custom = model.StringMap{"account_no": "ACC-2002", "branch": "Ikeja"}
	if err := UpdateContact(g, c); err != nil {
		t.Fatal(err)
	}
	got, err = GetContactById(g, c.Id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Custom["branch"] != "Ikeja" || got.Custom["account_no"] != "ACC-2002" {
		t.Fatalf("custom fields not updated: %v", got.Custom)
	}
}
