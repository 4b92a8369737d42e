package common

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func PasswordOK(dbPlain, dbSHA256, inputPlain string) bool {
	if dbPlain != "" && dbPlain == inputPlain {
		return true
	}
	if dbSHA256 != "" && dbSHA256 == inputPlain {
		return true
	}
	return false
}

func StatusOK(s string) bool { return strings.EqualFold(s, "enabled") }

// password_sha256 = SHA256(password)
func HashUP(pass string) string {
	sum := sha256.Sum256([]byte(pass))
	return hex.EncodeToString(sum[:])
}

func GetPage(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("size", "10"))
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 10
	}
	return
}

func IsAdminID(adminIDs []int, id int64) bool {
	for _, v := range adminIDs {
		if int64(v) == id {
			return true
		}
	}
	return false
}

func GetAuth(c *gin.Context) (uid int64, isAdmin bool) {
	if v, ok := c.Get("uid"); ok {
		switch t := v.(type) {
		case int64:
			uid = t
		case int:
			uid = int64(t)
		}
	}
	if v, ok := c.Get("isAdmin"); ok {
		if b, ok := v.(bool); ok {
			isAdmin = b
		}
	}
	return
}

/* -------------------- 电话号码 -------------------- */

var rePhoneJunk = regexp.MustCompile(`[\s\-().]+`)

// NormalizePhone：尽力归一到 E.164 形态（“+”加纯数字，最长 15 位）。
// 不做国家码推断；没有 + 前缀的短号/裸号原样保留。
func NormalizePhone(s string) (string, bool) {
	s = rePhoneJunk.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return "", false
	}
	digits := s
	plus := strings.HasPrefix(s, "+")
	if plus {
		digits = s[1:]
	}
	if digits == "" || len(digits) > 15 {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	if plus {
		return "+" + digits, true
	}
	return digits, true
}

/* -------------------- 小工具 -------------------- */

func Max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// 构造发送整形器：perSec 为每秒条数；burst 至少为 1
func MkShaper(perSec float64, burst int) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

// readPEMorFile: 若字符串本身包含 "-----BEGIN" 则视为 PEM 内容，否则按路径读取文件
func ReadPEMorFile(s string) ([]byte, error) {
	if looksLikePEM(s) {
		return []byte(s), nil
	}
	b, err := os.ReadFile(filepath.Clean(s))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func looksLikePEM(s string) bool {
	return strings.Contains(s, "-----BEGIN ")
}

// 解析逗号分隔的域名/通配符；空串 => 禁用
func ParseGuardList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// 支持通配符 "*.example.com"；其余精确匹配（大小写不敏感）
func MatchAnyHostPattern(host string, patterns []string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	for _, pat := range patterns {
		if wildcardMatch(host, pat) {
			return true
		}
	}
	return false
}

func wildcardMatch(host, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	if !strings.Contains(pattern, "*") {
		return host == pattern
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*.")
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}
	return host == pattern
}

func IsDesktop() bool { // Win/macOS 视为“开发机”
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}
