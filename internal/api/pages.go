package api

import (
	"embed"
	"net/http"

	log "github.com/sirupsen/logrus"
)

//go:embed static/*.html
var pages embed.FS

func servePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := pages.ReadFile("static/" + name)
		if err != nil {
			log.WithError(err).WithField("page", name).Error("embedded page missing")
			http.Error(w, "page not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(body)
	}
}
