package dao

import (
	"strings"

	"gorm.io/gorm"
	"smspanel/panel/model"
)

var routeTypes = map[string]bool{
	model.RouteDefault:  true,
	model.RouteStaticMT: true,
	model.RouteRandomRR: true,
	model.RouteFailover: true,
}

func validateRoute(tx *gorm.DB, r *model.Route) error {
	r.Type = strings.TrimSpace(strings.ToLower(r.Type))
	if r.Type == "" {
		r.Type = model.RouteDefault
	}
	if !routeTypes[r.Type] {
		return invalidf("unknown route type: %s", r.Type)
	}
	if r.Rate < 0 {
		return invalidf("rate must be >= 0")
	}
	if r.ConnectorId <= 0 {
		return invalidf("connector_id is required")
	}
	var cnt int64
	if err := tx.Model(&model.Connector{}).Where("id = ?", r.ConnectorId).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt == 0 {
		return invalidf("connector %d does not exist", r.ConnectorId)
	}
	if r.Type == model.RouteFailover {
		if r.FailoverConnectorId <= 0 {
			return invalidf("failover route requires failover_connector_id")
		}
		if r.FailoverConnectorId == r.ConnectorId {
			return invalidf("failover connector must differ from primary")
		}
		if err := tx.Model(&model.Connector{}).Where("id = ?", r.FailoverConnectorId).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt == 0 {
			return invalidf("failover connector %d does not exist", r.FailoverConnectorId)
		}
	}
	// filters 里的 id 必须都存在（存在即可，停用的评估时当不存在处理）
	for _, fid := range r.Filters {
		if err := tx.Model(&model.Filter{}).Where("id = ?", fid).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt == 0 {
			return invalidf("filter %d does not exist", fid)
		}
	}
	return nil
}

func GetRouteById(db *gorm.DB, id int64) (*model.Route, error) {
	var r model.Route
	err := db.Model(&model.Route{}).Where("id = ?", id).Take(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRoutes：按 ord 升序（评估顺序）
func ListRoutes(db *gorm.DB) ([]model.Route, error) {
	var out []model.Route
	err := db.Model(&model.Route{}).Order("ord ASC").Find(&out).Error
	return out, err
}

// CreateRoute：ord<=0 追加到末尾；指定 ord 时插到该位置，后面的整体后移。
// ord 列有 UNIQUE 约束，后移用两阶段改号（先置负再翻正）避免中间态撞号。
func CreateRoute(db *gorm.DB, r *model.Route) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := validateRoute(tx, r); err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&model.Route{}).Count(&n).Error; err != nil {
			return err
		}
		if r.Ord <= 0 || int64(r.Ord) > n {
			r.Ord = int(n) + 1
			return tx.Create(r).Error
		}
		// 腾位：>=ord 的先改成负数（-(ord+1)），翻正后正好 +1
		if err := tx.Exec(`UPDATE route SET ord = -(ord+1) WHERE ord >= ?`, r.Ord).Error; err != nil {
			return err
		}
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		return tx.Exec(`UPDATE route SET ord = -ord WHERE ord < 0`).Error
	})
}

// UpdateRoute：只改内容字段；ord 的调整一律走 ReorderRoutes。
func UpdateRoute(db *gorm.DB, r *model.Route) error {
	if r.Id <= 0 {
		return invalidf("route id is required")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var cur model.Route
		if err := tx.Where("id = ?", r.Id).Take(&cur).Error; err != nil {
			return err
		}
		if err := validateRoute(tx, r); err != nil {
			return err
		}
		return tx.Model(&model.Route{}).Where("id = ?", r.Id).
			Select("type", "connector_id", "failover_connector_id", "rate",
				"filters", "is_active", "description").
			Updates(r).Error
	})
}

// DeleteRoute：删除后把后面的路由前移补洞，保持 1..N 连续。
func DeleteRoute(db *gorm.DB, id int64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var r model.Route
		if err := tx.Where("id = ?", id).Take(&r).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Route{}, id).Error; err != nil {
			return err
		}
		if err := tx.Exec(`UPDATE route SET ord = -(ord-1) WHERE ord > ?`, r.Ord).Error; err != nil {
			return err
		}
		return tx.Exec(`UPDATE route SET ord = -ord WHERE ord < 0`).Error
	})
}

// ReorderRoutes：id→新 ord 的全量映射。必须恰好覆盖全部路由，
// 且新 ord 恰好是 1..N 的一个排列；否则整体拒绝，不做部分应用。
func ReorderRoutes(db *gorm.DB, order map[int64]int) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var all []model.Route
		if err := tx.Find(&all).Error; err != nil {
			return err
		}
		n := len(all)
		if len(order) != n {
			return invalidf("reorder must cover all %d routes, got %d", n, len(order))
		}
		seen := make(map[int]bool, n)
		for _, r := range all {
			ord, ok := order[r.Id]
			if !ok {
				return invalidf("route %d missing from reorder set", r.Id)
			}
			if ord < 1 || ord > n {
				return invalidf("ord %d out of range 1..%d", ord, n)
			}
			if seen[ord] {
				return invalidf("duplicate ord %d", ord)
			}
			seen[ord] = true
		}
		// 两阶段：全部先写成 -ord（负数之间不撞），再统一翻正
		for id, ord := range order {
			if err := tx.Exec(`UPDATE route SET ord = ? WHERE id = ?`, -ord, id).Error; err != nil {
				return err
			}
		}
		return tx.Exec(`UPDATE route SET ord = -ord WHERE ord < 0`).Error
	})
}

// BumpRouteStats：发送结果回写计数（routed/failed 二选一）
func BumpRouteStats(db *gorm.DB, id int64, ok bool, cost float64) error {
	if ok {
		return db.Exec(`UPDATE route SET messages_routed = messages_routed + 1, total_cost = total_cost + ? WHERE id = ?`,
			cost, id).Error
	}
	return db.Exec(`UPDATE route SET messages_failed = messages_failed + 1 WHERE id = ?`, id).Error
}
