package chainlinks

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/xerrors"
)

// Home describes the deployment on the landing page.
type Home struct {
	ContractAddress        string
	ChainID                int64
	WalletConnectProjectID string
}

type Server struct {
	resolver *Resolver
	home     Home
	logger   zerolog.Logger
}

// NewServer returns a new Server resolving short codes with res.
// If l is nil, a console logger writing to os.Stderr will be used.
func NewServer(res *Resolver, home Home, l *zerolog.Logger) *Server {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	if l != nil {
		logger = *l
	}

	return &Server{
		resolver: res,
		home:     home,
		logger:   logger,
	}
}

// Handler returns a chi router with the middleware stack and all routes registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	s.SetupRoutes(r)

	return r
}

// SetupRoutes registers the home, health, resolver and redirect handlers on the router.
func (s *Server) SetupRoutes(r chi.Router) {
	r.Get("/", s.serveHome)
	r.Get("/healthz", healthz)

	// all methods, so that anything but GET gets a JSON 405 instead of chi's plain one
	r.HandleFunc("/api/redirect", func(w http.ResponseWriter, r *http.Request) {
		s.resolveJSON(w, r, r.URL.Query().Get("shortCode"))
	})
	r.HandleFunc("/api/redirect/{shortCode}", func(w http.ResponseWriter, r *http.Request) {
		s.resolveJSON(w, r, shortCodeParam(r))
	})

	r.Get("/{shortCode}", func(w http.ResponseWriter, r *http.Request) {
		s.redirect(w, r, shortCodeParam(r))
	})
}

// shortCodeParam returns the unescaped shortCode URL parameter. chi routes on
// r.URL.RawPath when it is set (e.g. for an escaped slash), and only then is
// the parameter still escaped; otherwise it was decoded once already.
func shortCodeParam(r *http.Request) string {
	param := chi.URLParam(r, "shortCode")
	if r.URL.RawPath == "" {
		return param
	}
	if unescaped, err := url.PathUnescape(param); err == nil {
		return unescaped
	}
	return param
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("could not write health response")
	}
}

type urlResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v as a JSON response with the specified status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Int("status", status).Msg("could not write JSON response")
	}
}

// resolveJSON handles the resolver endpoint: it looks up shortCode and
// answers with {"url": ...} or {"error": ...}.
func (s *Server) resolveJSON(w http.ResponseWriter, r *http.Request, shortCode string) {
	if r.Method != http.MethodGet {
		writeJSON(w, r, KindMethodNotAllowed.Status(), errorResponse{KindMethodNotAllowed.PublicMessage()})
		return
	}

	longURL, err := s.resolver.Resolve(r.Context(), shortCode)
	if err != nil {
		kind := KindOf(err)
		logResolveError(hlog.FromRequest(r), err)
		writeJSON(w, r, kind.Status(), errorResponse{kind.PublicMessage()})
		return
	}

	hlog.FromRequest(r).Info().Str("short_code", shortCode).Str("url", longURL).Msg("resolved")

	writeJSON(w, r, http.StatusOK, urlResponse{longURL})
}

// redirect handles GET /{shortCode}. If the short code resolves, the client is
// redirected to the destination; otherwise an error page is rendered.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, shortCode string) {
	longURL, err := s.resolver.Resolve(r.Context(), shortCode)
	if err != nil {
		logResolveError(hlog.FromRequest(r), err)
		s.renderError(w, shortCode, err)
		return
	}

	hlog.FromRequest(r).Info().Str("short_code", shortCode).Str("url", longURL).Msg("redirecting")

	http.Redirect(w, r, longURL, http.StatusTemporaryRedirect)
}

func logResolveError(logger *zerolog.Logger, err error) {
	var event *zerolog.Event
	switch KindOf(err) {
	case KindNotFound:
		event = logger.Info()
	case KindConfiguration:
		event = logger.Warn()
	default:
		event = logger.Error()
	}

	var re *ResolveError
	if xerrors.As(err, &re) {
		event = event.
			Str("short_code", re.ShortCode).
			Str("kind", re.Kind.String()).
			Str("incident", re.Diagnostics.Incident)
	}
	event.Err(err).Msg("could not resolve short code")
}
