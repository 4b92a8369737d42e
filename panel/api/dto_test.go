package api

import (
	"testing"
)

func TestFilterDTODefaults(t *testing.T) {
	d := filterDTO{Fid: " dest-ng ", Type: "Destination", Value: "+234"}
	f := d.toModel()
	if f.Fid != "dest-ng" || f.Type != "destination" {
		t.Fatalf("normalize: %+v", f)
	}
	// 未传默认大小写敏感、默认启用
	if !f.IsCaseSensitive || !f.IsActive {
		t.Fatalf("defaults: %+v", f)
	}

	off := false
	d.IsCaseSensitive = &off
	d.IsActive = &off
	f = d.toModel()
	if f.IsCaseSensitive || f.IsActive {
		t.Fatalf("explicit false ignored: %+v", f)
	}
}

func TestRouteDTODefaults(t *testing.T) {
	d := routeDTO{Type: "Default", ConnectorId: 1, Filters: []int64{3, 1}}
	r := d.toModel()
	if r.Type != "default" || !r.IsActive {
		t.Fatalf("defaults: %+v", r)
	}
	if len(r.Filters) != 2 || r.Filters[0] != 3 {
		t.Fatalf("filters order lost: %v", r.Filters)
	}
}
