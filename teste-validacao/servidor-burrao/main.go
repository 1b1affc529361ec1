// servidor-burrao é um upstream de teste para o gateway: responde tudo e loga
// cada acesso. Rode duas instâncias (PORT=8081, PORT=8082) para ver o
// round-robin entre targets.
package main

import (
	"fmt"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>Servidor %s recebeu %s</p>", port, r.URL.Path)
		log.WithFields(log.Fields{
			"path":       r.URL.Path,
			"request_id": r.Header.Get("X-Request-Id"),
			"forwarded":  r.Header.Get("X-Forwarded-For"),
		}).Info("acesso")
	})

	log.Infof("Servidor rodando em http://localhost:%s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("Erro ao subir o servidor: %s", err)
	}
}
