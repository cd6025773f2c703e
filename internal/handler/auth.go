package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type VerifyRequest struct {
	Key string `json:"key"`
}

const tokenTTL = 7 * 24 * time.Hour

func tokenSecret() string {
	if secret := os.Getenv("TOKEN_SECRET"); secret != "" {
		return secret
	}
	return "quant-a-share-secret-key"
}

func sign(timestamp string) string {
	h := hmac.New(sha256.New, []byte(tokenSecret()))
	h.Write([]byte(timestamp))
	return hex.EncodeToString(h.Sum(nil))
}

// generateToken 生成token: timestamp.signature
func generateToken(now time.Time) string {
	timestamp := strconv.FormatInt(now.Unix(), 10)
	return fmt.Sprintf("%s.%s", timestamp, sign(timestamp))
}

// ValidateToken 校验签名与有效期
func ValidateToken(token string, now time.Time) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return false
	}
	timestamp, signature := parts[0], parts[1]
	if !hmac.Equal([]byte(signature), []byte(sign(timestamp))) {
		return false
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	return now.Sub(time.Unix(ts, 0)) <= tokenTTL
}

// VerifyAPIKey 用 QUANT_API_KEY 换取 token
func VerifyAPIKey(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "请求参数错误",
		})
		return
	}

	apiKey := os.Getenv("QUANT_API_KEY")
	if apiKey != "" && !hmac.Equal([]byte(req.Key), []byte(apiKey)) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "密钥错误",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "验证成功",
		"token":   generateToken(time.Now()),
	})
}

// AuthMiddleware 校验 Bearer token，未配置 QUANT_API_KEY 时放行
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if os.Getenv("QUANT_API_KEY") == "" {
			c.Next()
			return
		}

		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "未授权访问"})
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")

		if !ValidateToken(token, time.Now()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token无效或已过期"})
			return
		}
		c.Next()
	}
}
