// Package middleware содержит HTTP middleware для сервиса учёта АЗС.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/pumpstation-system/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

const (
	authCookieName = "auth_token"
	authCookieTTL  = 365 * 24 * time.Hour
)

// AuthMiddleware выполняет проверку аутентификации пользователя по подписанному cookie.
// Полезная нагрузка cookie несёт идентификатор пользователя и его роль.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie авторизации и добавляет актора в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		actor, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookie устанавливает cookie авторизации для указанного пользователя.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, userID int64, role model.Role) {
	value := a.sign(payload(userID, role))

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func payload(userID int64, role model.Role) string {
	return strconv.FormatInt(userID, 10) + ":" + string(role)
}

func (a *AuthMiddleware) sign(p string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(p))
	signature := mac.Sum(nil)
	return p + "." + hex.EncodeToString(signature)
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (model.User, bool) {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return model.User{}, false
	}

	p := parts[0]
	signature := parts[1]

	expected := a.sign(p)
	expectedParts := strings.Split(expected, ".")
	if len(expectedParts) != 2 {
		return model.User{}, false
	}

	if !hmac.Equal([]byte(signature), []byte(expectedParts[1])) {
		return model.User{}, false
	}

	payloadParts := strings.SplitN(p, ":", 2)
	if len(payloadParts) != 2 {
		return model.User{}, false
	}

	id, err := strconv.ParseInt(payloadParts[0], 10, 64)
	if err != nil {
		return model.User{}, false
	}

	role := model.Role(payloadParts[1])
	if !role.Valid() {
		return model.User{}, false
	}

	return model.User{ID: id, Role: role}, true
}

// GetActorFromContext извлекает аутентифицированного пользователя из контекста запроса.
func GetActorFromContext(ctx context.Context) (model.User, bool) {
	actor, ok := ctx.Value(actorKey).(model.User)
	return actor, ok
}
