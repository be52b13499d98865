package flows

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/constants"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/logging"
	"github.com/matheuscscp/oauth2-flow-coordinator/internal/registry"
)

const pathCallback = "/callback"

// serveCallback runs a one-shot redirect capture for a browser flow on the
// flow's loopback listener. The server dies together with the listener,
// which the flow record closes when it reaches a terminal phase or is
// cancelled.
func serveCallback(ln net.Listener, rec *registry.Record) {
	l := logging.WithFlow(string(rec.Target().Kind), rec.Target().ID)

	mux := http.NewServeMux()
	mux.HandleFunc(pathCallback, func(w http.ResponseWriter, r *http.Request) {
		// OAuth redirects are GETs; anything else is not the browser.
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		if oauthErr := q.Get(constants.QueryParamError); oauthErr != "" {
			msg := oauthErr
			if desc := q.Get(constants.QueryParamErrorDescription); desc != "" {
				msg = fmt.Sprintf("%s: %s", oauthErr, desc)
			}
			l.WithField("oauthError", oauthErr).Info("authorization rejected on redirect")
			rec.Fail(msg)
			rec.Kick()
			respondCallbackPage(w, http.StatusBadRequest, "Authorization failed",
				"The authorization server reported an error. You can close this window.")
			return
		}

		code := q.Get(constants.QueryParamAuthorizationCode)
		if code == "" {
			respondCallbackPage(w, http.StatusBadRequest, "Authorization failed",
				"The redirect carried no authorization code. You can close this window.")
			return
		}

		if err := rec.DeliverCode(q.Get(constants.QueryParamState), code); err != nil {
			rec.Kick()
			respondCallbackPage(w, http.StatusBadRequest, "Authorization failed",
				"The redirect could not be validated. You can close this window.")
			return
		}

		respondCallbackPage(w, http.StatusOK, "Authorization successful",
			"You can close this window and return to the application.")
	})

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed && !isClosedListener(err) {
			l.WithError(err).Error("redirect capture server failed")
		}
	}()
}

func isClosedListener(err error) bool {
	opErr, ok := err.(*net.OpError)
	return ok && opErr.Op == "accept"
}

func respondCallbackPage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<html><body><h1>%s</h1><p>%s</p></body></html>", title, body)
}
