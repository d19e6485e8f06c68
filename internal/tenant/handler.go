package tenant

import (
	"net/http"

	"github.com/utafrali/tenantgate/pkg/httputil"
)

// ContextResponse is returned by the client bootstrap endpoint.
type ContextResponse struct {
	Domain   Domain `json:"domain"`
	Hostname string `json:"hostname"`
	Port     string `json:"port,omitempty"`
}

// ContextHandler answers GET /api/v1/context?host=&port= so browser code can
// classify window.location with the same function the server uses. Without a
// host parameter the request's own Host header is classified.
func ContextHandler(r *Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		host, port := q.Get("host"), q.Get("port")
		if host == "" {
			host = req.Host
		}

		httputil.WriteJSON(w, http.StatusOK, httputil.Response{
			Data: ContextResponse{
				Domain:   r.Resolve(host, port),
				Hostname: host,
				Port:     port,
			},
		})
	}
}
