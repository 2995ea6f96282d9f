package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/andriy-shtumpf/todo-test/internal/auth"
	domain "github.com/andriy-shtumpf/todo-test/internal/domain/errors"
	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Authenticate extracts the bearer token from the Authorization header
// and verifies it before every task operation. A missing token is 401;
// any verification failure, including provider outage, is 403.
func Authenticate(verifier auth.Verifier) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx.GetHeader("Authorization"))
		if token == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": domain.ErrUnauthenticated.Error()})
			return
		}

		identity, err := verifier.Verify(ctx.Request.Context(), token)
		if err != nil {
			log.Println("[ERROR] Token verification failed:", err)
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": domain.ErrInvalidCredential.Error()})
			return
		}

		ctx.Set(identityKey, identity)
		ctx.Next()
	}
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func identityFrom(ctx *gin.Context) (*auth.Identity, bool) {
	value, exists := ctx.Get(identityKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*auth.Identity)
	return identity, ok
}
