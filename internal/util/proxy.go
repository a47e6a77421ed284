package util

import (
	"net/http"
	"net/url"

	"github.com/CiscoSE/MaxmindAsnImporter/internal/config"
)

// ProxyFunc builds the transport proxy selector for the configured HTTP
// settings. With no proxies configured it defers to the standard
// HTTP_PROXY/HTTPS_PROXY environment handling, so the importer behaves like
// any other CLI on a proxied network. The https proxy only covers https
// requests; the http proxy covers everything left without one.
func ProxyFunc(cfg config.HTTPConfig) func(*http.Request) (*url.URL, error) {
	if cfg.HTTPProxy == "" && cfg.HTTPSProxy == "" {
		return http.ProxyFromEnvironment
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && cfg.HTTPSProxy != "" {
			return url.Parse(cfg.HTTPSProxy)
		}
		if cfg.HTTPProxy != "" {
			return url.Parse(cfg.HTTPProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}
