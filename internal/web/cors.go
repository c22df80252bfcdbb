package web

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errNoCORSOrigins     = errors.New("web.cors.no_origins")
	errNoCORSMethods     = errors.New("web.cors.no_methods")
	errWildcardOrigin    = errors.New("web.cors.wildcard_origin")
	errMalformedOrigin   = errors.New("web.cors.malformed_origin")
	errUnsupportedScheme = errors.New("web.cors.unsupported_scheme")
)

// bearerRequestHeaders are the request headers a browser sends to the token routes:
// the bearer credential and the content type of the login form.
var bearerRequestHeaders = []string{"Authorization", "Content-Type", "Accept"}

// CORSPolicy describes which browser origins may call the token routes and with which methods.
type CORSPolicy struct {
	Origins []string
	// Methods served cross-origin. OPTIONS is always added for preflight.
	Methods []string
}

// originMatcher accepts exact origins plus loopback origins configured without a port,
// which then match any port on that loopback host.
type originMatcher struct {
	exact         map[string]struct{}
	loopbackHosts map[string]struct{}
}

func (matcher originMatcher) allows(origin string) bool {
	if _, ok := matcher.exact[origin]; ok {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Port() == "" {
		return false
	}
	_, ok := matcher.loopbackHosts[strings.ToLower(parsed.Scheme)+"://"+parsed.Hostname()]
	return ok
}

func (matcher originMatcher) origins() []string {
	listed := make([]string, 0, len(matcher.exact))
	for origin := range matcher.exact {
		listed = append(listed, origin)
	}
	sort.Strings(listed)
	return listed
}

// ConfigureCORS builds the cross-origin middleware for policy. Credentials are never allowed
// because tokens travel in the Authorization header, not in cookies.
func ConfigureCORS(logger *zap.Logger, policy CORSPolicy) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	matcher, err := parseOrigins(logger, policy.Origins)
	if err != nil {
		return nil, err
	}
	methods, err := preflightMethods(policy.Methods)
	if err != nil {
		return nil, err
	}
	logger.Info("cors enabled",
		zap.String("code", "web.cors.enabled"),
		zap.Strings("origins", matcher.origins()),
		zap.Strings("methods", methods))
	return cors.New(cors.Config{
		AllowOriginFunc: matcher.allows,
		AllowMethods:    methods,
		AllowHeaders:    bearerRequestHeaders,
		MaxAge:          12 * time.Hour,
	}), nil
}

func preflightMethods(methods []string) ([]string, error) {
	unique := map[string]struct{}{http.MethodOptions: {}}
	for _, method := range methods {
		if normalized := strings.ToUpper(strings.TrimSpace(method)); normalized != "" {
			unique[normalized] = struct{}{}
		}
	}
	if len(unique) == 1 {
		return nil, errNoCORSMethods
	}
	listed := make([]string, 0, len(unique))
	for method := range unique {
		listed = append(listed, method)
	}
	sort.Strings(listed)
	return listed, nil
}

func parseOrigins(logger *zap.Logger, origins []string) (originMatcher, error) {
	matcher := originMatcher{
		exact:         make(map[string]struct{}),
		loopbackHosts: make(map[string]struct{}),
	}
	for _, raw := range origins {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			return originMatcher{}, errWildcardOrigin
		}
		parsed, parseErr := url.Parse(trimmed)
		if parseErr != nil || parsed.Host == "" || strings.Trim(parsed.Path, "/") != "" || parsed.RawQuery != "" || parsed.Fragment != "" {
			return originMatcher{}, fmt.Errorf("%w: %s", errMalformedOrigin, trimmed)
		}
		scheme := strings.ToLower(parsed.Scheme)
		if scheme != "http" && scheme != "https" {
			return originMatcher{}, fmt.Errorf("%w: %s", errUnsupportedScheme, trimmed)
		}
		host := strings.ToLower(parsed.Host)
		matcher.exact[scheme+"://"+host] = struct{}{}

		loopback := isLoopbackHost(parsed.Hostname())
		if loopback && parsed.Port() == "" {
			matcher.loopbackHosts[scheme+"://"+strings.ToLower(parsed.Hostname())] = struct{}{}
		}
		if scheme == "http" && !loopback {
			logger.Warn("plain http cors origin configured",
				zap.String("code", "web.cors.insecure_origin"),
				zap.String("origin", scheme+"://"+host))
		}
	}
	if len(matcher.exact) == 0 {
		return originMatcher{}, errNoCORSOrigins
	}
	return matcher, nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
