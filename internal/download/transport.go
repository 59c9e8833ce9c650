package download

import (
	"net"
	"net/http"
	"time"
)

// DefaultUserAgent is a desktop Chrome identity; the remote hosts reject Go's default.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// NewHTTPClient returns the persistent client used for direct transfers.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: newHTTPTransport()}
}
