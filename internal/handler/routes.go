package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"reelpass/internal/middleware"
)

// Routes wires handlers and route-level middleware onto a router. Nil
// Session, Idempotency, RateLimit or Metrics entries are skipped.
type Routes struct {
	Entitlement *EntitlementHandler
	Catalog     *CatalogHandler
	System      *SystemHandler
	Session     *SessionHandler
	Metrics     http.Handler

	Auth        func(http.Handler) http.Handler
	Idempotency func(http.Handler) http.Handler
	RateLimit   func(http.Handler) http.Handler
}

func (rt Routes) Register(r *mux.Router) {
	// Preflights must match a route for router-level middleware such as
	// CORS to run; the method-restricted routes below never match OPTIONS.
	r.Methods(http.MethodOptions).PathPrefix("/").HandlerFunc(preflight)

	r.HandleFunc("/health", rt.System.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", rt.System.Ready).Methods(http.MethodGet)
	if rt.Metrics != nil {
		r.Handle("/metrics", rt.Metrics).Methods(http.MethodGet)
	}

	// Public catalog
	pub := r.PathPrefix("/api/v1").Subrouter()
	if rt.RateLimit != nil {
		pub.Use(rt.RateLimit)
	}
	pub.HandleFunc("/tiers", rt.Catalog.ListTiers).Methods(http.MethodGet)
	pub.HandleFunc("/movies", rt.Catalog.ListMovies).Methods(http.MethodGet)
	pub.HandleFunc("/movies/{id}", rt.Catalog.GetMovie).Methods(http.MethodGet)

	// Authenticated entitlement routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(rt.Auth)
	if rt.RateLimit != nil {
		api.Use(rt.RateLimit)
	}

	create := http.Handler(http.HandlerFunc(rt.Entitlement.CreatePurchase))
	if rt.Idempotency != nil {
		create = rt.Idempotency(create)
	}
	api.Handle("/purchases", create).Methods(http.MethodPost)
	api.HandleFunc("/purchases", rt.Entitlement.ListPurchases).Methods(http.MethodGet)
	api.HandleFunc("/purchases/{id}", rt.Entitlement.GetPurchase).Methods(http.MethodGet)
	api.HandleFunc("/purchases/{id}/playback", rt.Entitlement.BeginPlayback).Methods(http.MethodPost)
	api.HandleFunc("/purchases/{id}/authorize", rt.Entitlement.AuthorizePlayback).Methods(http.MethodPost)
	api.HandleFunc("/purchases/{id}/devices", rt.Entitlement.ListDevices).Methods(http.MethodGet)
	api.HandleFunc("/purchases/{id}/devices", rt.Entitlement.RegisterDevice).Methods(http.MethodPost)
	api.HandleFunc("/purchases/{id}/devices/{deviceId}", rt.Entitlement.DeactivateDevice).Methods(http.MethodDelete)

	if rt.Session != nil {
		api.HandleFunc("/session/logout", rt.Session.Logout).Methods(http.MethodPost)
	}

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireUserType("admin"))
	admin.HandleFunc("/purchases/{id}/revoke", rt.Entitlement.RevokePurchase).Methods(http.MethodPost)
}

func preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
