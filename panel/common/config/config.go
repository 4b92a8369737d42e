package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"smspanel/panel/common"
	"smspanel/panel/common/logx"
)

type DBPoolCfg struct {
	MaxOpen        int `yaml:"max_open"`
	MaxIdle        int `yaml:"max_idle"`
	MaxLifetimeSec int `yaml:"max_lifetime_sec"`
}

type DBCfg struct {
	Driver string    `yaml:"driver"`
	DSN    string    `yaml:"dsn"`
	Pool   DBPoolCfg `yaml:"pool"`
	Enable bool      `yaml:"enable"`
}

type DualDBCfg struct {
	Master DBCfg `yaml:"master"`
	Log    DBCfg `yaml:"log"`
}

type AdminAuth struct {
	AdminIDs  []int  `yaml:"admin_ids"`
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  int    `yaml:"token_ttl"` // 分钟
}

type TLSConfig struct {
	Cert     string `yaml:"cert"`
	Key      string `yaml:"key"`
	SniGuard string `yaml:"sniGuard"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// GatewayConfig：外部 SMS 网关管理 API（面板不实现 SMPP，只调网关）
type GatewayConfig struct {
	BaseURL         string `yaml:"base_url"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TimeoutSec      int    `yaml:"timeout_sec"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
}

// InfluxDB2Config：可选指标落点；BaseURL 为空则关闭
type InfluxDB2Config struct {
	BaseURL            string `yaml:"base_url"`
	Token              string `yaml:"token"`
	Org                string `yaml:"org"`
	Bucket             string `yaml:"bucket"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type Config struct {
	DB        DualDBCfg       `yaml:"db"`
	Admin     AdminAuth       `yaml:"admin"`
	TLSConfig TLSConfig       `yaml:"tls"`
	Logging   Logging         `yaml:"logging"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Influx    InfluxDB2Config `yaml:"influx"`
}

// ====== 默认 DSN（当 DSN 为空时才生效） ======
func defaultSQLiteDSNs() (masterDSN, logDSN string) {
	base := "/var/lib/smspanel"
	if common.IsDesktop() {
		base = "./lib"
	}

	q := url.Values{}
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_foreign_keys", "ON")

	master := filepath.ToSlash(filepath.Join(base, "master.db"))
	log := filepath.ToSlash(filepath.Join(base, "log.db"))

	return "file:" + master + "?" + q.Encode(),
		"file:" + log + "?" + q.Encode()
}

// ensureDirForFileDSN 确保 file:DSN 的目录存在（对相对/绝对路径都可）
func ensureDirForFileDSN(dsn string) error {
	if !strings.HasPrefix(dsn, "file:") {
		return nil
	}
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	dir := filepath.Dir(p)
	return os.MkdirAll(dir, 0o755)
}

var log = logx.New(logx.WithPrefix("config"))

func Load(p string) (*Config, string, error) {
	// 先读指定路径，失败则读 /etc/smspanel/config.yaml
	b, err := os.ReadFile(p)
	if err != nil {
		p = "/etc/smspanel/config.yaml"
		b, err = os.ReadFile(p)
		if err != nil {
			log.Errorf("open config: no such file or directory")
			return nil, p, err
		}
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, p, err
	}

	applyDefaults(&c)

	// 确保目录存在
	if err := ensureDirForFileDSN(c.DB.Master.DSN); err != nil {
		return nil, p, err
	}
	if c.DB.Log.Enable {
		if err := ensureDirForFileDSN(c.DB.Log.DSN); err != nil {
			return nil, p, err
		}
	}
	return &c, p, nil
}

func applyDefaults(c *Config) {
	if c.DB.Master.Driver == "" {
		c.DB.Master.Driver = "sqlite"
	}
	if c.DB.Log.Driver == "" {
		c.DB.Log.Driver = c.DB.Master.Driver
	}
	masterDSN, logDSN := defaultSQLiteDSNs()
	if c.DB.Master.DSN == "" {
		c.DB.Master.DSN = masterDSN
	}
	if c.DB.Log.DSN == "" {
		c.DB.Log.DSN = logDSN
	}

	if len(c.Admin.AdminIDs) == 0 {
		c.Admin.AdminIDs = []int{1}
	}
	if c.Admin.TokenTTL <= 0 {
		c.Admin.TokenTTL = 60 * 2
	}

	if c.Gateway.TimeoutSec <= 0 {
		c.Gateway.TimeoutSec = 10
	}
	if c.Gateway.PollIntervalSec <= 0 {
		c.Gateway.PollIntervalSec = 30
	}
}
