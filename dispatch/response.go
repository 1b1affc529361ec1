package dispatch

import (
	"net/http"
	"sync/atomic"

	"dispatch-gateway/dispatch/domain"
)

// HTTPResponse adapta um http.ResponseWriter para domain.Response.
//
// A resposta só é considerada finalizada depois de End; WriteHeader/Write sozinhos
// não interrompem o pipeline.
type HTTPResponse struct {
	w        http.ResponseWriter
	status   int
	finished atomic.Bool
}

var _ domain.Response = (*HTTPResponse)(nil)

func NewHTTPResponse(w http.ResponseWriter) *HTTPResponse {
	return &HTTPResponse{w: w}
}

func (r *HTTPResponse) Header() http.Header { return r.w.Header() }

func (r *HTTPResponse) WriteHeader(status int) {
	if r.status != 0 {
		return
	}
	r.status = status
	r.w.WriteHeader(status)
}

func (r *HTTPResponse) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.WriteHeader(http.StatusOK)
	}
	return r.w.Write(b)
}

// Status devolve o status escrito, ou 0.
func (r *HTTPResponse) Status() int { return r.status }

// Written indica se o status já foi enviado.
func (r *HTTPResponse) Written() bool { return r.status != 0 }

func (r *HTTPResponse) End() {
	if r.finished.Swap(true) {
		return
	}
	if r.status == 0 {
		r.WriteHeader(http.StatusOK)
	}
	if f, ok := r.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *HTTPResponse) Finished() bool { return r.finished.Load() }

// WriteError é o handler de erro padrão: usa o status do erro (domain.StatusOf),
// ou 500, e o texto do status como corpo.
func WriteError(w http.ResponseWriter, err error) {
	status := domain.StatusOf(err)
	if hr, ok := w.(*HTTPResponse); ok {
		if hr.Finished() {
			return
		}
		defer hr.End()
	}
	http.Error(w, http.StatusText(status), status)
}
