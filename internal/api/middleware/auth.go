package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Auth проверяет токен дашборда из заголовка Authorization.
//
// tokenHash - bcrypt-хэш токена (API_TOKEN_HASH в конфигурации).
// Пустой хэш выключает аутентификацию: локальное развертывание
// на одного оператора работает без токена.
//
// Клиент присылает сам токен: Authorization: Bearer <token>.
// bcrypt-сравнение устойчиво к timing-атакам и не требует
// хранить токен в открытом виде на сервере.
func Auth(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" || token == header {
				w.Header().Set("WWW-Authenticate", `Bearer realm="dashboard"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="dashboard"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
