package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config 对应 config.xml
type Config struct {
	XMLName      xml.Name `xml:"config"`
	Listen       string   `xml:"listen"`
	Backend      string   `xml:"backend"`
	Driver       string   `xml:"driver"`
	SqlitePath   string   `xml:"sqlitepath"`
	Dbname       string   `xml:"dbname"`
	Host         string   `xml:"host"`
	Port         string   `xml:"port"`
	Username     string   `xml:"user"`
	Password     string   `xml:"password"`
	LogLevel     string   `xml:"loglevel"`
	LogFormat    string   `xml:"logformat"`
	CacheTTL     int      `xml:"cachettl"`     // 要素列表缓存秒数
	HitTolerance float64  `xml:"hittolerance"` // 命中容差，地图单位(米)
	Timeout      int      `xml:"timeout"`      // 客户端请求超时秒数，0 不限
}

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMysql    = "mysql"
)

// Default 返回未读取配置文件时的默认值
func Default() *Config {
	return &Config{
		Listen:       ":7021",
		Backend:      "http://localhost:7021",
		Driver:       DriverSqlite,
		SqlitePath:   "features.db",
		Port:         "5432",
		LogLevel:     "info",
		LogFormat:    "console",
		CacheTTL:     30,
		HitTolerance: 10,
	}
}

// Load 读取 XML 配置，随后用 .env 与 MAPEDIT_* 环境变量覆盖。
// path 为空或文件不存在时使用默认值。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		xmlFile, err := os.Open(path)
		switch {
		case err == nil:
			defer xmlFile.Close()
			if err := xml.NewDecoder(xmlFile).Decode(cfg); err != nil {
				return nil, errors.Wrapf(err, "decode %s", path)
			}
		case os.IsNotExist(err):
		default:
			return nil, errors.Wrapf(err, "open %s", path)
		}
	}

	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"MAPEDIT_LISTEN":      &c.Listen,
		"MAPEDIT_BACKEND":     &c.Backend,
		"MAPEDIT_DB_DRIVER":   &c.Driver,
		"MAPEDIT_SQLITE_PATH": &c.SqlitePath,
		"MAPEDIT_DB_NAME":     &c.Dbname,
		"MAPEDIT_DB_HOST":     &c.Host,
		"MAPEDIT_DB_PORT":     &c.Port,
		"MAPEDIT_DB_USER":     &c.Username,
		"MAPEDIT_DB_PASSWORD": &c.Password,
		"MAPEDIT_LOG_LEVEL":   &c.LogLevel,
		"MAPEDIT_LOG_FORMAT":  &c.LogFormat,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAPEDIT_CACHE_TTL": &c.CacheTTL,
		"MAPEDIT_TIMEOUT":   &c.Timeout,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parse %s", key)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("MAPEDIT_HIT_TOLERANCE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(err, "parse MAPEDIT_HIT_TOLERANCE")
		}
		c.HitTolerance = f
	}
	return nil
}

// DSN 拼接 postgres 连接串
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC", c.Host, c.Username, c.Password, c.Dbname, c.Port)
}

// MysqlDSN 拼接 mysql 连接串
func (c *Config) MysqlDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC", c.Username, c.Password, c.Host, c.Port, c.Dbname)
}

func (c *Config) CacheDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
