package dao

import (
	"strings"

	"gorm.io/gorm"
	"smspanel/panel/model"
)

var bindTypes = map[string]bool{
	model.BindTransceiver: true,
	model.BindTransmitter: true,
	model.BindReceiver:    true,
}

func validateConnector(c *model.Connector) error {
	c.Cid = strings.TrimSpace(c.Cid)
	c.Host = strings.TrimSpace(c.Host)
	c.BindType = strings.TrimSpace(strings.ToLower(c.BindType))
	if c.BindType == "" {
		c.BindType = model.BindTransceiver
	}
	if c.Cid == "" {
		return invalidf("cid is required")
	}
	if c.Host == "" {
		return invalidf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return invalidf("port must be 1..65535")
	}
	if !bindTypes[c.BindType] {
		return invalidf("unknown bind type: %s", c.BindType)
	}
	if c.SubmitThroughput < 0 {
		return invalidf("submit_throughput must be >= 0")
	}
	return nil
}

func GetConnectorById(db *gorm.DB, id int64) (*model.Connector, error) {
	var c model.Connector
	err := db.Model(&model.Connector{}).Where("id = ?", id).Take(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func GetConnectorByCid(db *gorm.DB, cid string) (*model.Connector, error) {
	var c model.Connector
	err := db.Model(&model.Connector{}).Where("cid = ?", cid).Take(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func ListConnectors(db *gorm.DB, offset, limit int) ([]model.Connector, int64, error) {
	var total int64
	if err := db.Model(&model.Connector{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []model.Connector
	err := db.Model(&model.Connector{}).Order("id ASC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

func CreateConnector(db *gorm.DB, c *model.Connector) error {
	if err := validateConnector(c); err != nil {
		return err
	}
	var cnt int64
	if err := db.Model(&model.Connector{}).Where("cid = ?", c.Cid).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return conflictf("connector cid already exists: %s", c.Cid)
	}
	if c.Status == "" {
		c.Status = model.ConnStopped
	}
	return db.Create(c).Error
}

func UpdateConnector(db *gorm.DB, c *model.Connector) error {
	if c.Id <= 0 {
		return invalidf("connector id is required")
	}
	if err := validateConnector(c); err != nil {
		return err
	}
	var cnt int64
	if err := db.Model(&model.Connector{}).
		Where("cid = ? AND id <> ?", c.Cid, c.Id).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return conflictf("connector cid already exists: %s", c.Cid)
	}
	res := db.Model(&model.Connector{}).Where("id = ?", c.Id).
		Select("cid", "label", "host", "port", "username", "password", "system_id",
			"bind_type", "submit_throughput", "is_enabled", "description").
		Updates(c)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteConnector：被路由引用（主用或备用）的连接器不许删。
func DeleteConnector(db *gorm.DB, id int64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var c model.Connector
		if err := tx.Where("id = ?", id).Take(&c).Error; err != nil {
			return err
		}
		var cnt int64
		if err := tx.Model(&model.Route{}).
			Where("connector_id = ? OR failover_connector_id = ?", id, id).
			Count(&cnt).Error; err != nil {
			return err
		}
		if cnt > 0 {
			return conflictf("connector %s is referenced by %d route(s)", c.Cid, cnt)
		}
		return tx.Delete(&model.Connector{}, id).Error
	})
}

// SyncConnectorStatus：状态轮询回写（status/last_error 以网关为准）
func SyncConnectorStatus(db *gorm.DB, cid, status, lastErr string) error {
	return db.Model(&model.Connector{}).Where("cid = ?", cid).
		Updates(map[string]any{"status": status, "last_error": lastErr}).Error
}

// BumpConnectorStats：发送结果回写计数
func BumpConnectorStats(db *gorm.DB, cid string, ok bool) error {
	if ok {
		return db.Exec(`UPDATE connector SET total_sent = total_sent + 1 WHERE cid = ?`, cid).Error
	}
	return db.Exec(`UPDATE connector SET total_failed = total_failed + 1 WHERE cid = ?`, cid).Error
}
