package db

import (
	"fmt"
	"smspanel/panel/model"
)

// EnsureMessageLogTable：按日创建发送流水分表（完全 SQL，一次性建齐索引）
// day 示例："20260829"
func EnsureMessageLogTable(d *DB, day string) error {
	tbl := model.MessageLogTable(day)

	switch d.Driver {
	case "mysql":
		// MySQL：索引在 CREATE TABLE 内一次性写全
		create := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id BIGINT PRIMARY KEY AUTO_INCREMENT,
  time BIGINT NOT NULL,
  campaign_id BIGINT,
  route_id BIGINT,
  connector_cid VARCHAR(255),
  from_addr VARCHAR(32),
  to_addr VARCHAR(32),
  content_length INT,
  status VARCHAR(16) NOT NULL,
  cost DOUBLE,
  error VARCHAR(1024),
  KEY idx_%[1]s_time (time),
  KEY idx_%[1]s_campaign (campaign_id),
  KEY idx_%[1]s_campaign_time (campaign_id, time),
  KEY idx_%[1]s_route (route_id),
  KEY idx_%[1]s_route_time (route_id, time),
  KEY idx_%[1]s_connector (connector_cid),
  KEY idx_%[1]s_connector_time (connector_cid, time),
  KEY idx_%[1]s_to (to_addr),
  KEY idx_%[1]s_to_time (to_addr, time),
  KEY idx_%[1]s_status_time (status, time)
);`, tbl)
		return d.GormDataSource.Exec(create).Error

	case "sqlite", "sqlite3":
		// SQLite：先建表，再用 IF NOT EXISTS 建索引
		create := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  time BIGINT NOT NULL,
  campaign_id INTEGER,
  route_id INTEGER,
  connector_cid TEXT,
  from_addr TEXT,
  to_addr TEXT,
  content_length INTEGER,
  status TEXT NOT NULL,
  cost REAL,
  error TEXT
);`, tbl)
		if err := d.GormDataSource.Exec(create).Error; err != nil {
			return err
		}

		idxes := []struct {
			name string
			cols string
		}{
			{fmt.Sprintf("idx_%s_time", tbl), "time"},
			{fmt.Sprintf("idx_%s_campaign", tbl), "campaign_id"},
			{fmt.Sprintf("idx_%s_campaign_time", tbl), "campaign_id, time"},
			{fmt.Sprintf("idx_%s_route", tbl), "route_id"},
			{fmt.Sprintf("idx_%s_route_time", tbl), "route_id, time"},
			{fmt.Sprintf("idx_%s_connector", tbl), "connector_cid"},
			{fmt.Sprintf("idx_%s_connector_time", tbl), "connector_cid, time"},
			{fmt.Sprintf("idx_%s_to", tbl), "to_addr"},
			{fmt.Sprintf("idx_%s_to_time", tbl), "to_addr, time"},
			{fmt.Sprintf("idx_%s_status_time", tbl), "status, time"},
		}
		for _, ix := range idxes {
			sql := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s);", ix.name, tbl, ix.cols)
			if err := d.GormDataSource.Exec(sql).Error; err != nil {
				return err
			}
		}
		return nil

	default:
		return nil
	}
}
