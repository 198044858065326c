package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	app "github.com/MoveSocial/social_layer/internal/app"
	"github.com/MoveSocial/social_layer/internal/app/domain/task"
	"github.com/MoveSocial/social_layer/internal/app/services/sponsor"
	"github.com/MoveSocial/social_layer/internal/errors"
	"github.com/MoveSocial/social_layer/internal/middleware"
)

// handler bundles the delegated-action HTTP endpoints.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the delegated-action REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/profiles", h.createProfile)
	mux.HandleFunc("/profiles/follow", h.action(task.ActionFollowProfile))
	mux.HandleFunc("/profiles/unfollow", h.action(task.ActionUnfollowProfile))
	mux.HandleFunc("/profiles/image", h.profileUpdate(task.ActionUpdateProfileImage))
	mux.HandleFunc("/profiles/cover", h.profileUpdate(task.ActionUpdateProfileCover))
	mux.HandleFunc("/profiles/description", h.profileUpdate(task.ActionUpdateProfileDescription))
	mux.HandleFunc("/posts", h.action(task.ActionCreatePost))
	mux.HandleFunc("/posts/like", h.action(task.ActionLikePost))
	mux.HandleFunc("/posts/unlike", h.action(task.ActionUnlikePost))
	mux.HandleFunc("/comments", h.action(task.ActionCreateComment))
	mux.HandleFunc("/gas/pool", h.gasPool)
	mux.HandleFunc("/gas/rebalance", h.gasRebalance)
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createProfile is the only delegated action that needs no profile ownership:
// the session is creating its first on-chain identity.
func (h *handler) createProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload task.Payload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeAPIError(w, errors.BadRequest(err.Error()))
		return
	}

	taken, err := h.app.Sponsor.ProfileNameTaken(r.Context(), payload.ProfileName)
	if err != nil {
		writeAPIError(w, errors.Internal("profile name check failed"))
		return
	}
	if taken {
		writeAPIError(w, errors.BadRequest("profile name already taken"))
		return
	}

	h.run(w, r, task.ActionCreateProfile, payload)
}

// action handles delegated writes whose payload already names every object.
func (h *handler) action(action task.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var payload task.Payload
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeAPIError(w, errors.BadRequest(err.Error()))
			return
		}
		if !middleware.GetClaims(r.Context()).OwnsProfile(payload.Profile) {
			writeAPIError(w, errors.Forbidden("profile not owned by session"))
			return
		}

		h.run(w, r, action, payload)
	}
}

// profileUpdate handles the owner-cap actions: the capability object stays
// custodial, so it is resolved server-side and never accepted from a client.
func (h *handler) profileUpdate(action task.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var payload task.Payload
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeAPIError(w, errors.BadRequest(err.Error()))
			return
		}
		if !middleware.GetClaims(r.Context()).OwnsProfile(payload.Profile) {
			writeAPIError(w, errors.Forbidden("profile not owned by session"))
			return
		}

		capID, err := h.app.Sponsor.ResolveProfileCap(r.Context(), payload.Profile)
		if err != nil {
			writeAPIError(w, errors.NotFound("profile owner cap not found"))
			return
		}
		payload.ProfileOwnerCap = capID

		h.run(w, r, action, payload)
	}
}

// run enqueues the action and waits for its outcome.
func (h *handler) run(w http.ResponseWriter, r *http.Request, action task.Action, payload task.Payload) {
	id, err := h.app.Sponsor.Enqueue(r.Context(), action, payload)
	if err != nil {
		writeAPIError(w, errors.BadRequest(err.Error()))
		return
	}

	resp, err := h.app.Sponsor.AwaitResult(r.Context(), id)
	if err != nil {
		if stderrors.Is(err, sponsor.ErrAwaitTimeout) {
			writeAPIError(w, errors.Timeout("transaction still pending"))
			return
		}
		writeAPIError(w, errors.Internal(err.Error()))
		return
	}
	if resp.Failed() {
		if strings.Contains(resp.Error, sponsor.ErrPoolExhausted.Error()) {
			writeAPIError(w, errors.Busy(sponsor.ErrPoolExhausted.Error()))
			return
		}
		writeAPIError(w, errors.Internal(resp.Error))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) gasPool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	n, err := h.app.Sponsor.PoolSize(r.Context())
	if err != nil {
		writeAPIError(w, errors.Internal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"available": n})
}

func (h *handler) gasRebalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.app.Rebalancer.Rebalance(r.Context(), true); err != nil {
		writeAPIError(w, errors.Internal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rebalanced"})
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeAPIError(w http.ResponseWriter, apiErr *errors.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(apiErr)
}
