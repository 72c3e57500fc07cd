package app

import (
	"net"
	"net/http"
	"time"
)

// newFetchHTTPClient returns an http.Client tuned for crawling a
// modest set of origins repeatedly: generous per-host idle pools so
// connections to the same registry or gazette host are reused across
// documents. The client itself carries no timeout; each fetch attempt
// is bounded by its own context deadline.
func newFetchHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	return &http.Client{Transport: transport}
}
