package shield

import "net/http"

// HeaderConfig defines the security headers applied to every response.
type HeaderConfig struct {
	CSP                 string `yaml:"csp"`
	XFrameOptions       string `yaml:"x_frame_options"`
	XContentTypeOptions string `yaml:"x_content_type_options"`
	ReferrerPolicy      string `yaml:"referrer_policy"`
}

// DefaultHeaders forbids scripts outright: previews are sanitized static
// markup and never need them. Framing is limited to the same origin so an
// editor UI can embed the preview.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "default-src 'none'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; media-src 'self' https:; frame-ancestors 'self'",
		XFrameOptions:       "SAMEORIGIN",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
	}
}

// SecurityHeaders returns middleware that sets the configured headers on
// every response.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			set := func(k, v string) {
				if v != "" {
					h.Set(k, v)
				}
			}
			set("X-Content-Type-Options", cfg.XContentTypeOptions)
			set("X-Frame-Options", cfg.XFrameOptions)
			set("Referrer-Policy", cfg.ReferrerPolicy)
			set("Content-Security-Policy", cfg.CSP)
			next.ServeHTTP(w, r)
		})
	}
}
