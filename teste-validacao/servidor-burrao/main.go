package main

import (
	"log"
	"net/http"
	"time"
)

// upstream "burro" para validar o gateway na mão: responde devagar de
// propósito para segurar leases de concorrência.
func main() {
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("upstream ok\n"))
	})
	log.Println("upstream listening on :9000")
	log.Fatal(http.ListenAndServe(":9000", nil))
}
