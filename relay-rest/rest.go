// Package relayrest serves chi routes over HTTP in console mode or behind API
// Gateway in Lambda mode.
package relayrest

import (
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	relaycli "github.com/chatrelay/relay-go-utils/relay-cli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/savaki/apigateway"
)

func Middlewares(logger zerolog.Logger, routes chi.Router) chi.Router {
	routes.Use(
		withSecurityHeaders,
		withCORS(),
		withLogger(logger),
		middleware.Recoverer,
	)
	return routes
}

func Webserver(logger zerolog.Logger, routes chi.Router) error {
	if relaycli.CommonOpts.Console {
		logger.Info().Int("port", relaycli.CommonOpts.Port).Msg("starting http server")
		addr := fmt.Sprintf(":%v", relaycli.CommonOpts.Port)
		return http.ListenAndServe(addr, routes)
	}

	lambda.Start(apigateway.Wrap(routes, relaycli.CommonOpts.Env))
	return nil
}

func withSecurityHeaders(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		header := w.Header()
		header.Add("x-content-type-options", "nosniff")
		header.Add("cache-control", "no-store")
		handler.ServeHTTP(w, req)
	})
}

func withCORS() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.With().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger().
				WithContext(req.Context())
			handler.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}
