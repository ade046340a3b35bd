package routing

import (
	"log"
	"net/http"
	"runtime/debug"
)

// Router dispatches on exact path and method. Misses go through WriteError
// so API callers always get the JSON envelope.
type Router struct {
	classifier *Classifier
	routes     map[string]map[string]routeEntry
}

type routeEntry struct {
	class   RouteClass
	handler http.Handler
}

func NewRouter(classifier *Classifier) *Router {
	return &Router{
		classifier: classifier,
		routes:     make(map[string]map[string]routeEntry),
	}
}

func (rt *Router) Handle(class RouteClass, method string, path string, h http.Handler) {
	byMethod, ok := rt.routes[path]
	if !ok {
		byMethod = make(map[string]routeEntry)
		rt.routes[path] = byMethod
	}
	byMethod[method] = routeEntry{class: class, handler: recoverWrap(class, h)}
}

func recoverWrap(class RouteClass, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				log.Printf("panic serving %s %s: %v\n%s", r.Method, r.URL.Path, v, debug.Stack())
				WriteError(w, r, class, http.StatusInternalServerError, "internal_error", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	byMethod, ok := rt.routes[r.URL.Path]
	if !ok {
		WriteError(w, r, rt.classifier.Classify(r.URL.Path), http.StatusNotFound, "not_found", "not found")
		return
	}
	entry, ok := byMethod[r.Method]
	if !ok {
		class := entrypointClass(byMethod, rt.classifier.Classify(r.URL.Path))
		WriteError(w, r, class, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	entry.handler.ServeHTTP(w, r)
}

func entrypointClass(byMethod map[string]routeEntry, fallback RouteClass) RouteClass {
	for _, entry := range byMethod {
		return entry.class
	}
	return fallback
}
