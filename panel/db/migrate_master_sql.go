package db

import (
	"fmt"
	"gorm.io/gorm"
	"smspanel/panel/common"
	"strings"
)

// 仅用原生 SQL 完成初始化（建表/索引/触发器/种子数据）
// driver: "mysql" | "sqlite"
func MigrateMasterSQL(g *gorm.DB, driver string) error {
	switch strings.ToLower(driver) {
	case "mysql":
		if err := createTablesMySQL(g); err != nil {
			return fmt.Errorf("mysql create tables: %w", err)
		}
		if err := seedAdmin(g); err != nil {
			return fmt.Errorf("mysql seed admin: %w", err)
		}
		return nil

	case "sqlite":
		if err := createTablesSQLite(g); err != nil {
			return fmt.Errorf("sqlite create tables: %w", err)
		}
		if err := ensureSQLiteTimeTriggers(g); err != nil {
			return fmt.Errorf("sqlite time triggers: %w", err)
		}
		if err := seedAdmin(g); err != nil {
			return fmt.Errorf("sqlite seed admin: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported driver: %s", driver)
	}
}

func seedAdmin(g *gorm.DB) error {
	var cnt int64
	if err := g.Raw(`SELECT COUNT(*) FROM user`).Scan(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return nil
	}
	pass := "smspanel"
	hash := common.HashUP(pass)
	return g.Exec(`INSERT INTO user (username,password,password_sha256,status) VALUES (?,?,?,'enabled')`,
		"smspanel", pass, hash).Error
}

/* ------------------------ MySQL：一次性 CREATE TABLE（含所有索引） ------------------------ */

func createTablesMySQL(g *gorm.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			username VARCHAR(255) NOT NULL UNIQUE,
			password VARCHAR(255) NOT NULL,
			password_sha256 VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'enabled',
			create_date_time DATETIME DEFAULT CURRENT_TIMESTAMP,
			update_date_time DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			KEY idx_user_status (status)
		);`,

		`CREATE TABLE IF NOT EXISTS filter (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			fid VARCHAR(255) NOT NULL,
			type VARCHAR(32) NOT NULL,
			parameter VARCHAR(255) NOT NULL DEFAULT '',
			value TEXT NOT NULL,
			is_regex TINYINT NOT NULL DEFAULT 0,
			is_case_sensitive TINYINT NOT NULL DEFAULT 1,
			negate TINYINT NOT NULL DEFAULT 0,
			is_active TINYINT NOT NULL DEFAULT 1,
			description VARCHAR(1024) NOT NULL DEFAULT '',
			create_date_time DATETIME DEFAULT CURRENT_TIMESTAMP,
			update_date_time DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_filter_fid (fid),
			KEY idx_filter_type (type),
			KEY idx_filter_active (is_active)
		);`,

		`CREATE TABLE IF NOT EXISTS route (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			ord INT NOT NULL,
			type VARCHAR(32) NOT NULL DEFAULT 'default',
			connector_id BIGINT NOT NULL,
			failover_connector_id BIGINT NOT NULL DEFAULT 0,
			rate DOUBLE NOT NULL DEFAULT 0,
			filters TEXT,
			is_active TINYINT NOT NULL DEFAULT 1,
			description VARCHAR(1024) NOT NULL DEFAULT '',
			messages_routed BIGINT NOT NULL DEFAULT 0,
			messages_failed BIGINT NOT NULL DEFAULT 0,
			total_cost DOUBLE NOT NULL DEFAULT 0,
			create_date_time DATETIME DEFAULT CURRENT_TIMESTAMP,
			update_date_time DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_route_ord (ord),
			KEY idx_route_connector (connector_id),
			KEY idx_route_active (is_active)
		);`,

		`CREATE TABLE IF NOT EXISTS connector (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			cid VARCHAR(255) NOT NULL,
			label VARCHAR(255) NOT NULL DEFAULT '',
			host VARCHAR(255) NOT NULL,
			port INT NOT NULL,
			username VARCHAR(255) NOT NULL DEFAULT '',
			password VARCHAR(255) NOT NULL DEFAULT '',
			system_id VARCHAR(255) NOT NULL DEFAULT '',
			bind_type VARCHAR(16) NOT NULL DEFAULT 'transceiver',
			submit_throughput INT NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL DEFAULT 'stopped',
			is_enabled TINYINT NOT NULL DEFAULT 1,
			last_error VARCHAR(1024) NOT NULL DEFAULT '',
			description VARCHAR(1024) NOT NULL DEFAULT '',
			total_sent BIGINT NOT NULL DEFAULT 0,
			total_failed BIGINT NOT NULL DEFAULT 0,
			create_date_time DATETIME DEFAULT CURRENT_TIMESTAMP,
			update_date_time DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_connector_cid (cid),
			KEY idx_connector_status (status),
			KEY idx_connector_enabled (is_enabled)
		);`,

		`CREATE TABLE IF NOT EXISTS contact (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			phone_number VARCHAR(20) NOT NULL,
			first_name VARCHAR(255) NOT NULL DEFAULT '',
			last_name VARCHAR(255) NOT NULL DEFAULT '',
			email VARCHAR(255) NOT NULL DEFAULT '',
			groups_list TEXT,
			custom_fields TEXT,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			create_date_time DATETIME DEFAULT CURRENT_TIMESTAMP,
			update_date_time DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_contact_phone (phone_number),
			KEY idx_contact_status (status)
		);`,

		`CREATE TABLE IF NOT EXISTS template (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			description VARCHAR(1024) NOT NULL DEFAULT '',
			is_active TINYINT NOT NULL DEFAULT 1,
			create_date_time DATETIME DEFAULT CURRENT_TIMESTAMP,
			update_date_time DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_template_name (name)
		);`,

		`CREATE TABLE IF NOT EXISTS campaign (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL,
			template_id BIGINT NOT NULL DEFAULT 0,
			message_content TEXT,
			sender_id VARCHAR(32) NOT NULL DEFAULT '',
			groups_list TEXT,
			throughput INT NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL DEFAULT 'draft',
			description VARCHAR(1024) NOT NULL DEFAULT '',
			scheduled_at DATETIME,
			started_at DATETIME,
			completed_at DATETIME,
			total_recipients BIGINT NOT NULL DEFAULT 0,
			sent BIGINT NOT NULL DEFAULT 0,
			failed BIGINT NOT NULL DEFAULT 0,
			total_cost DOUBLE NOT NULL DEFAULT 0,
			create_date_time DATETIME DEFAULT CURRENT_TIMESTAMP,
			update_date_time DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			KEY idx_campaign_status (status),
			KEY idx_campaign_scheduled (scheduled_at)
		);`,
	}
	for _, sql := range stmts {
		if err := g.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}

/* ------------------------ SQLite：CREATE TABLE + 触发器（时间维护） ------------------------ */

func createTablesSQLite(g *gorm.DB) error {
	stmts := []string{
		// user（时间列 TEXT，用触发器写 localtime）
		`CREATE TABLE IF NOT EXISTS user (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			password_sha256 TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'enabled',
			create_date_time TEXT,
			update_date_time TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_status ON user(status);`,

		// filter
		`CREATE TABLE IF NOT EXISTS filter (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fid TEXT NOT NULL,
			type TEXT NOT NULL,
			parameter TEXT NOT NULL DEFAULT '',
			value TEXT NOT NULL,
			is_regex INTEGER NOT NULL DEFAULT 0,
			is_case_sensitive INTEGER NOT NULL DEFAULT 1,
			negate INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			description TEXT NOT NULL DEFAULT '',
			create_date_time TEXT,
			update_date_time TEXT
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_filter_fid ON filter(fid);`,
		`CREATE INDEX IF NOT EXISTS idx_filter_type    ON filter(type);`,
		`CREATE INDEX IF NOT EXISTS idx_filter_active  ON filter(is_active);`,

		// route（ord 唯一保证优先级无歧义，重排时两阶段改号）
		`CREATE TABLE IF NOT EXISTS route (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ord INTEGER NOT NULL,
			type TEXT NOT NULL DEFAULT 'default',
			connector_id INTEGER NOT NULL,
			failover_connector_id INTEGER NOT NULL DEFAULT 0,
			rate REAL NOT NULL DEFAULT 0,
			filters TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			description TEXT NOT NULL DEFAULT '',
			messages_routed INTEGER NOT NULL DEFAULT 0,
			messages_failed INTEGER NOT NULL DEFAULT 0,
			total_cost REAL NOT NULL DEFAULT 0,
			create_date_time TEXT,
			update_date_time TEXT
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_route_ord ON route(ord);`,
		`CREATE INDEX IF NOT EXISTS idx_route_connector ON route(connector_id);`,
		`CREATE INDEX IF NOT EXISTS idx_route_active    ON route(is_active);`,

		// connector
		`CREATE TABLE IF NOT EXISTS connector (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cid TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			password TEXT NOT NULL DEFAULT '',
			system_id TEXT NOT NULL DEFAULT '',
			bind_type TEXT NOT NULL DEFAULT 'transceiver',
			submit_throughput INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'stopped',
			is_enabled INTEGER NOT NULL DEFAULT 1,
			last_error TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			total_sent INTEGER NOT NULL DEFAULT 0,
			total_failed INTEGER NOT NULL DEFAULT 0,
			create_date_time TEXT,
			update_date_time TEXT
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_connector_cid ON connector(cid);`,
		`CREATE INDEX IF NOT EXISTS idx_connector_status  ON connector(status);`,
		`CREATE INDEX IF NOT EXISTS idx_connector_enabled ON connector(is_enabled);`,

		// contact
		`CREATE TABLE IF NOT EXISTS contact (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			phone_number TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			groups_list TEXT,
			custom_fields TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			create_date_time TEXT,
			update_date_time TEXT
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_contact_phone ON contact(phone_number);`,
		`CREATE INDEX IF NOT EXISTS idx_contact_status ON contact(status);`,

		// template
		`CREATE TABLE IF NOT EXISTS template (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			content TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			create_date_time TEXT,
			update_date_time TEXT
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_template_name ON template(name);`,

		// campaign
		`CREATE TABLE IF NOT EXISTS campaign (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			template_id INTEGER NOT NULL DEFAULT 0,
			message_content TEXT,
			sender_id TEXT NOT NULL DEFAULT '',
			groups_list TEXT,
			throughput INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'draft',
			description TEXT NOT NULL DEFAULT '',
			scheduled_at TEXT,
			started_at TEXT,
			completed_at TEXT,
			total_recipients INTEGER NOT NULL DEFAULT 0,
			sent INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			total_cost REAL NOT NULL DEFAULT 0,
			create_date_time TEXT,
			update_date_time TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_campaign_status    ON campaign(status);`,
		`CREATE INDEX IF NOT EXISTS idx_campaign_scheduled ON campaign(scheduled_at);`,
	}
	for _, sql := range stmts {
		if err := g.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}

// ensureSQLiteTimeTriggers：自动给所有包含 create_date_time / update_date_time 的表打本地时间触发器
func ensureSQLiteTimeTriggers(g *gorm.DB) error {
	type Tbl struct{ Name string }
	var tbls []Tbl
	if err := g.Raw(`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`).Scan(&tbls).Error; err != nil {
		return err
	}

	for _, t := range tbls {
		// 只取我们需要的两列，避免 GORM 去解析 dflt_value 之类的多类型字段
		type Col struct {
			Name string `gorm:"column:name"`
			PK   int    `gorm:"column:pk"`
		}
		var cols []Col
		if err := g.Raw(fmt.Sprintf(`PRAGMA table_info(%q);`, t.Name)).Scan(&cols).Error; err != nil {
			return err
		}

		hasCreate, hasUpdate := false, false
		pkCol := ""
		for _, c := range cols {
			n := strings.ToLower(c.Name)
			if n == "create_date_time" {
				hasCreate = true
			}
			if n == "update_date_time" {
				hasUpdate = true
			}
			if c.PK > 0 && pkCol == "" {
				pkCol = c.Name
			}
		}
		if !hasCreate && !hasUpdate {
			continue
		}

		cond := "rowid = NEW.rowid"
		if pkCol != "" {
			cond = fmt.Sprintf("%q = NEW.%q", pkCol, pkCol)
		}

		ai := fmt.Sprintf("%s_ai_ts", t.Name)
		au := fmt.Sprintf("%s_au_ts", t.Name)

		setInsert := []string{}
		if hasCreate {
			setInsert = append(setInsert, "create_date_time = COALESCE(NEW.create_date_time, datetime('now','localtime'))")
		}
		if hasUpdate {
			setInsert = append(setInsert, "update_date_time = COALESCE(NEW.update_date_time, datetime('now','localtime'))")
		}
		if len(setInsert) == 0 {
			setInsert = append(setInsert, "rowid=rowid")
		}

		aiSQL := fmt.Sprintf(`
CREATE TRIGGER IF NOT EXISTS %s
AFTER INSERT ON %q
FOR EACH ROW
BEGIN
  UPDATE %q
     SET %s
   WHERE %s;
END;`, ai, t.Name, t.Name, strings.Join(setInsert, ", "), cond)

		setUpdate := "rowid=rowid"
		if hasUpdate {
			setUpdate = "update_date_time = datetime('now','localtime')"
		}
		auSQL := fmt.Sprintf(`
CREATE TRIGGER IF NOT EXISTS %s
AFTER UPDATE ON %q
FOR EACH ROW
BEGIN
  UPDATE %q
     SET %s
   WHERE %s;
END;`, au, t.Name, t.Name, setUpdate, cond)

		if err := g.Exec(aiSQL).Error; err != nil {
			return fmt.Errorf("create trigger %s: %w", ai, err)
		}
		if err := g.Exec(auSQL).Error; err != nil {
			return fmt.Errorf("create trigger %s: %w", au, err)
		}
	}
	return nil
}
