package middleware

import (
	"net/http"

	"github.com/icheme/portfolio/pkg"

	log "github.com/sirupsen/logrus"
)

func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userIP, _ := pkg.ReadUserIP(r)
			log.Tracef(" ====> request [%s] path: [%s] [ip: %s] [UA: %s]", r.Method, r.URL.Path, userIP, r.UserAgent())
			next.ServeHTTP(w, r)
		})
	}
}
