// Package api is the external request surface (spec §1: "the HTTP
// transport and route wiring" are an external collaborator to the core).
// It is a thin adapter: it never implements allocation logic itself, only
// maps HTTP requests onto internal/allocator.Allocator and HTTP responses
// onto internal/allocator's typed errors (spec §7).
package api

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "github.com/google/uuid"
    "github.com/gorilla/mux"

    "github.com/hamzaKhattat/callerid-pool/internal/allocator"
    "github.com/hamzaKhattat/callerid-pool/internal/poolstore"
    "github.com/hamzaKhattat/callerid-pool/pkg/logger"
)

// Server is the HTTP adapter in front of the Allocator and Pool Store
// admin CRUD (spec §6 external interfaces).
type Server struct {
    alloc *allocator.Allocator
    pool  *poolstore.Store
    http  *http.Server
}

// NewServer wires the route table. pool may be nil to run allocate-only
// (no admin CRUD surface).
func NewServer(alloc *allocator.Allocator, pool *poolstore.Store, addr string, readTimeout, writeTimeout time.Duration) *Server {
    s := &Server{alloc: alloc, pool: pool}

    router := mux.NewRouter()
    router.Use(requestIDMiddleware)
    router.HandleFunc("/v1/allocate", s.handleAllocate).Methods(http.MethodPost)
    router.HandleFunc("/v1/release", s.handleRelease).Methods(http.MethodPost)
    router.HandleFunc("/v1/reservations/{number}", s.handleLookupReservation).Methods(http.MethodGet)

    if pool != nil {
        router.HandleFunc("/v1/admin/caller-ids", s.handleListCallerIDs).Methods(http.MethodGet)
        router.HandleFunc("/v1/admin/caller-ids", s.handleCreateCallerID).Methods(http.MethodPost)
        router.HandleFunc("/v1/admin/caller-ids/{number}", s.handleUpdateCallerID).Methods(http.MethodPatch)
        router.HandleFunc("/v1/admin/caller-ids/{number}", s.handleDeactivateCallerID).Methods(http.MethodDelete)
    }

    s.http = &http.Server{
        Addr:         addr,
        Handler:      router,
        ReadTimeout:  readTimeout,
        WriteTimeout: writeTimeout,
    }
    return s
}

// ListenAndServe blocks serving HTTP until Shutdown is called.
func (s *Server) ListenAndServe() error {
    logger.WithField("addr", s.http.Addr).Info("callerid-pool API server started")
    if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        return err
    }
    return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
    return s.http.Shutdown(ctx)
}

func requestIDMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        reqID := r.Header.Get("X-Request-ID")
        if reqID == "" {
            reqID = uuid.NewString()
        }
        ctx := context.WithValue(r.Context(), "request_id", reqID)
        w.Header().Set("X-Request-ID", reqID)
        next.ServeHTTP(w, r.WithContext(ctx))
    })
}

type allocateRequestBody struct {
    Destination string `json:"destination"`
    Campaign    string `json:"campaign"`
    Agent       string `json:"agent"`
}

type errorResponse struct {
    Kind    string `json:"kind"`
    Message string `json:"message"`
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
    var body allocateRequestBody
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        writeError(w, http.StatusBadRequest, &allocator.AllocationError{Kind: allocator.KindInvalidInput, Message: "malformed request body"})
        return
    }

    ctx := context.WithValue(r.Context(), "agent", body.Agent)
    ctx = context.WithValue(ctx, "campaign", body.Campaign)

    result, aerr := s.alloc.Allocate(ctx, allocator.AllocationRequest{
        Destination: body.Destination,
        Campaign:    body.Campaign,
        Agent:       body.Agent,
    })
    if aerr != nil {
        writeError(w, statusForKind(aerr.Kind), aerr)
        return
    }

    writeJSON(w, http.StatusOK, result)
}

type releaseRequestBody struct {
    Number string `json:"number"`
}

type releaseResponse struct {
    Deleted bool `json:"deleted"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
    var body releaseRequestBody
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Number == "" {
        writeError(w, http.StatusBadRequest, &allocator.AllocationError{Kind: allocator.KindInvalidInput, Message: "number is required"})
        return
    }

    deleted, aerr := s.alloc.Release(r.Context(), body.Number)
    if aerr != nil {
        writeError(w, statusForKind(aerr.Kind), aerr)
        return
    }
    writeJSON(w, http.StatusOK, releaseResponse{Deleted: deleted})
}

func (s *Server) handleLookupReservation(w http.ResponseWriter, r *http.Request) {
    number := mux.Vars(r)["number"]

    info, aerr := s.alloc.LookupReservation(r.Context(), number)
    if aerr != nil {
        writeError(w, statusForKind(aerr.Kind), aerr)
        return
    }
    if info == nil {
        writeError(w, http.StatusNotFound, &allocator.AllocationError{Kind: "NotFound", Message: "no reservation for this number"})
        return
    }
    writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListCallerIDs(w http.ResponseWriter, r *http.Request) {
    list, err := s.pool.List(r.Context())
    if err != nil {
        writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: "Internal", Message: err.Error()})
        return
    }
    writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateCallerID(w http.ResponseWriter, r *http.Request) {
    var c poolstore.CallerID
    if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
        writeJSON(w, http.StatusBadRequest, errorResponse{Kind: "InvalidInput", Message: "malformed request body"})
        return
    }
    c.Active = true
    if err := s.pool.Create(r.Context(), &c); err != nil {
        writeStoreError(w, err)
        return
    }
    writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCallerID(w http.ResponseWriter, r *http.Request) {
    number := mux.Vars(r)["number"]
    var c poolstore.CallerID
    if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
        writeJSON(w, http.StatusBadRequest, errorResponse{Kind: "InvalidInput", Message: "malformed request body"})
        return
    }
    c.Number = number
    if err := s.pool.Update(r.Context(), &c); err != nil {
        writeStoreError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeactivateCallerID(w http.ResponseWriter, r *http.Request) {
    number := mux.Vars(r)["number"]
    if err := s.pool.Deactivate(r.Context(), number); err != nil {
        writeStoreError(w, err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// statusForKind maps the Allocator's error taxonomy onto HTTP status codes
// (SPEC_FULL.md [MODULE] Request Surface).
func statusForKind(kind allocator.ErrorKind) int {
    switch kind {
    case allocator.KindInvalidInput, allocator.KindInvalidDestination:
        return http.StatusBadRequest
    case allocator.KindRateLimited:
        return http.StatusTooManyRequests
    case allocator.KindNoneAvailable:
        return http.StatusConflict
    case allocator.KindConflict:
        return http.StatusConflict
    case allocator.KindUnavailable:
        return http.StatusServiceUnavailable
    default:
        return http.StatusInternalServerError
    }
}

func writeError(w http.ResponseWriter, status int, aerr *allocator.AllocationError) {
    if aerr.Kind == allocator.KindRateLimited && aerr.RetryAfter > 0 {
        w.Header().Set("Retry-After", fmt.Sprintf("%d", int(aerr.RetryAfter.Seconds())))
    }
    writeJSON(w, status, errorResponse{Kind: string(aerr.Kind), Message: aerr.Message})
}

func writeStoreError(w http.ResponseWriter, err error) {
    writeJSON(w, http.StatusBadRequest, errorResponse{Kind: "StoreError", Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    json.NewEncoder(w).Encode(payload)
}
