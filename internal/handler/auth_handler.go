package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lifeloop/internal/db"
	"golang.org/x/crypto/bcrypt"
)

const userIDContextKey = "__user_id"

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login 校验用户名密码：成功时建立会话并签发 Bearer 访问令牌。
func (a *API) Login(c *gin.Context) {
	var payload loginPayload
	if !bindJSON(c, &payload, "invalid login payload") {
		return
	}

	var user db.User
	if err := a.db.Where("username = ?", strings.TrimSpace(payload.Username)).First(&user).Error; err != nil {
		respondError(c, http.StatusUnauthorized, "invalid username or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(payload.Password)); err != nil {
		respondError(c, http.StatusUnauthorized, "invalid username or password")
		return
	}

	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	session.Set("username", user.Username)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save session")
		return
	}

	token := db.AccessToken{UserID: user.ID, Token: uuid.NewString()}
	if err := a.db.Create(&token).Error; err != nil {
		respondError(c, http.StatusInternalServerError, "failed to issue access token")
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token.Token, "user_id": user.ID})
}

// Logout 清除会话。Bearer 令牌由客户端自行丢弃或另行撤销。
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AuthRequired 解析调用方身份：优先 Bearer 令牌，其次会话。
// 两者都无效时返回 401，不触达任何业务数据。
func (a *API) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, ok := a.resolveBearerToken(c); ok {
			c.Set(userIDContextKey, userID)
			c.Next()
			return
		}

		session := sessions.Default(c)
		if userID, ok := session.Get("user_id").(uint); ok && userID > 0 {
			c.Set(userIDContextKey, userID)
			c.Next()
			return
		}

		respondError(c, http.StatusUnauthorized, "authentication required")
		c.Abort()
	}
}

func (a *API) resolveBearerToken(c *gin.Context) (uint, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return 0, false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" || raw == header {
		return 0, false
	}

	var token db.AccessToken
	if err := a.db.Where("token = ?", raw).First(&token).Error; err != nil {
		return 0, false
	}

	now := time.Now()
	a.db.Model(&token).Update("last_used_at", &now)

	return token.UserID, true
}

// currentUserID 读取中间件写入的调用方用户 ID。
func currentUserID(c *gin.Context) uint {
	if value, exists := c.Get(userIDContextKey); exists {
		if userID, ok := value.(uint); ok {
			return userID
		}
	}
	return 0
}
