package campaign

import (
	"testing"

	"smspanel/panel/core/routing"
	"smspanel/panel/model"
)

func TestRender(t *testing.T) {
	ct := &model.Contact{FirstName: "Ada", LastName: "Obi", PhoneNumber: "+2348012345678", Email: "ada@example.com"}
	got := Render("Hi {{first_name}} {{ last_name }}, code for {{phone_number}}: {{code}}", ct)
	want := "Hi Ada Obi, code for +2348012345678: "
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	// 无占位符原样
	if got := Render("plain text", ct); got != "plain text" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderCustomFields(t *testing.T) {
	ct := &model.Contact{
		FirstName: "Ada",
		Custom:    model.StringMap{"account_no": "ACC-7781", "branch": "Ikeja"},
	}
	got := Render("{{first_name}}: {{account_no}} ({{ branch }}) ref={{missing}}", ct)
	want := "Ada: ACC-7781 (Ikeja) ref="
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	// 同名自定义字段覆盖内建字段
	ct.Custom["first_name"] = "Chief Ada"
	if got := Render("{{first_name}}", ct); got != "Chief Ada" {
		t.Fatalf("got %q", got)
	}
}

func TestPickConnector(t *testing.T) {
	conns := map[int64]model.Connector{
		1: {Id: 1, Cid: "mtn-01", IsEnabled: true, Status: model.ConnBound},
		2: {Id: 2, Cid: "glo-01", IsEnabled: true, Status: model.ConnStopped},
		3: {Id: 3, Cid: "air-01", IsEnabled: true, Status: model.ConnStarted},
	}

	// 主用可用
	c, err := pickConnector(routing.Decision{ConnectorId: 1}, conns)
	if err != nil || c.Cid != "mtn-01" {
		t.Fatalf("got %v %v", c, err)
	}
	// 主用停着、有备用 -> 切备用
	c, err = pickConnector(routing.Decision{ConnectorId: 2, FailoverConnectorId: 3}, conns)
	if err != nil || c.Cid != "air-01" {
		t.Fatalf("got %v %v", c, err)
	}
	// 主用停着、无备用 -> 错
	if _, err := pickConnector(routing.Decision{ConnectorId: 2}, conns); err == nil {
		t.Fatal("want error for unusable connector")
	}
	// 连接器不存在
	if _, err := pickConnector(routing.Decision{ConnectorId: 99}, conns); err == nil {
		t.Fatal("want error for missing connector")
	}
}
